package filter

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/domain/track"
)

// Settings is the per-filter configuration handed to NewChainFromConfig.
type Settings struct {
	Enabled  bool
	Settings map[string]any
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromConfig builds a chain from the registered filters.
// empty_query_filter is always installed first; other filters are added
// in name order when enabled.
func NewChainFromConfig(cfg map[string]Settings) (*Chain, error) {
	chain := NewChain()
	chain.Add(&EmptyQueryFilter{})

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == emptyQueryFilterName {
			continue
		}
		s, ok := cfg[name]
		if !ok || !s.Enabled {
			continue
		}
		f := registry[name]()
		if err := f.ValidateConfig(s.Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("filter enabled: name=%s", name)
	}

	for name := range cfg {
		if _, ok := registry[name]; !ok {
			zlog.Warn().Msgf("unknown filter in config: name=%s", name)
		}
	}
	return chain, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters for the stage in sequence.
// Returns immediately if any filter rejects the request.
func (c *Chain) Execute(ctx context.Context, stage Stage, req Request, t *track.Track) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(stage) {
			continue
		}

		result := f.Check(ctx, req, t)
		if !result.Accepted {
			zlog.Debug().Msgf("filter rejected request: filter=%s, code=%s, stage=%s", f.Name(), result.Code, stage)
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

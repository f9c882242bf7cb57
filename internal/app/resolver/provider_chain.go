package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/domain/track"
)

// ProviderChain tries providers in order until one handles the term.
type ProviderChain struct {
	providers []Provider
}

// NewProviderChain creates a new provider chain.
func NewProviderChain(providers ...Provider) *ProviderChain {
	return &ProviderChain{
		providers: providers,
	}
}

// Resolve resolves term with the first provider that handles it.
// A provider that handles the term but fails ends the chain.
func (c *ProviderChain) Resolve(ctx context.Context, term string) (track.Track, error) {
	term = strings.TrimSpace(term)

	for i, p := range c.providers {
		zlog.Debug().Msgf("trying provider: index=%d total=%d provider=%s", i+1, len(c.providers), p.Name())

		t, err := p.Resolve(ctx, term)
		if errors.Is(err, ErrNotHandled) {
			continue
		}
		if err != nil {
			zlog.Warn().Msgf("provider failed: provider=%s term=%q error=%v", p.Name(), term, err)
			return track.Track{}, errors.Wrapf(err, "provider %s", p.Name())
		}
		return t, nil
	}

	return track.Track{}, errors.Wrapf(ErrNotHandled, "no provider for term %q", term)
}

// Names returns the provider names in chain order.
func (c *ProviderChain) Names() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

package filter

import (
	"context"
	"strings"

	"github.com/osa030/jukebot/internal/domain/track"
)

const emptyQueryFilterName = "empty_query_filter"

// EmptyQueryFilter rejects blank search terms before resolution.
type EmptyQueryFilter struct{}

func (f *EmptyQueryFilter) Name() string {
	return emptyQueryFilterName
}

func (f *EmptyQueryFilter) Description() string {
	return "Rejects play requests without a search term or URL (always enabled)"
}

func (f *EmptyQueryFilter) ReturnCodes() []string {
	return []string{"empty_query"}
}

func (f *EmptyQueryFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *EmptyQueryFilter) AppliesTo(stage Stage) bool {
	return stage == StageQuery
}

func (f *EmptyQueryFilter) Check(ctx context.Context, req Request, t *track.Track) Result {
	if strings.TrimSpace(req.Term) == "" {
		return Reject("empty_query")
	}
	return Accept()
}

func init() {
	Register(emptyQueryFilterName, func() Filter {
		return &EmptyQueryFilter{}
	})
}

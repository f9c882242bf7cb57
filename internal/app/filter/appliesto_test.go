package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilters_AppliesTo(t *testing.T) {
	tests := []struct {
		name      string
		filter    Filter
		wantQuery bool
		wantTrack bool
	}{
		{"empty query", &EmptyQueryFilter{}, true, false},
		{"queue limit", &QueueLimitFilter{}, true, false},
		{"blocked user", &BlockedUserFilter{}, true, false},
		{"duration limit", NewDurationLimitFilter(), false, true},
		{"duplicate track", &DuplicateTrackFilter{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantQuery, tt.filter.AppliesTo(StageQuery))
			assert.Equal(t, tt.wantTrack, tt.filter.AppliesTo(StageTrack))
		})
	}
}

func TestFilters_Registered(t *testing.T) {
	registered := GetRegistered()
	for _, name := range []string{
		"empty_query_filter",
		"queue_limit_filter",
		"blocked_user_filter",
		"duration_limit_filter",
		"duplicate_track_filter",
	} {
		factory, ok := registered[name]
		if assert.True(t, ok, "filter %s should be registered", name) {
			f := factory()
			assert.Equal(t, name, f.Name())
			assert.NotEmpty(t, f.ReturnCodes())
			assert.NotEmpty(t, f.Description())
		}
	}
}

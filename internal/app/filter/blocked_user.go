package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/jukebot/internal/domain/track"
)

// BlockedUserConfig represents the configuration for BlockedUserFilter.
type BlockedUserConfig struct {
	UserIDs []string `yaml:"user_ids" mapstructure:"user_ids"`
}

// BlockedUserFilter rejects requests from blocked users.
type BlockedUserFilter struct {
	blocked map[string]struct{}
}

func (f *BlockedUserFilter) Name() string {
	return "blocked_user_filter"
}

func (f *BlockedUserFilter) Description() string {
	return "Rejects requests from users listed in user_ids"
}

func (f *BlockedUserFilter) ReturnCodes() []string {
	return []string{"user_blocked"}
}

func (f *BlockedUserFilter) ValidateConfig(settings map[string]any) error {
	var config BlockedUserConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}

	f.blocked = make(map[string]struct{}, len(config.UserIDs))
	for _, id := range config.UserIDs {
		if id == "" {
			return errors.New("user_ids must not contain empty values")
		}
		f.blocked[id] = struct{}{}
	}
	return nil
}

func (f *BlockedUserFilter) AppliesTo(stage Stage) bool {
	return stage == StageQuery
}

func (f *BlockedUserFilter) Check(ctx context.Context, req Request, t *track.Track) Result {
	if _, ok := f.blocked[req.Requester.ID]; ok {
		return Reject("user_blocked")
	}
	return Accept()
}

func init() {
	Register("blocked_user_filter", func() Filter {
		return &BlockedUserFilter{}
	})
}

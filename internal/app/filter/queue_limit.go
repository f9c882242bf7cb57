package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/domain/track"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
type QueueLimitConfig struct {
	MaxTracks  int `yaml:"max_tracks" mapstructure:"max_tracks" default:"100" validate:"gte=1"`
	MaxPerUser int `yaml:"max_per_user" mapstructure:"max_per_user" validate:"gte=0"`
}

// QueueLimitFilter caps the queue length overall and per requester.
type QueueLimitFilter struct {
	config *QueueLimitConfig
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit_filter"
}

func (f *QueueLimitFilter) Description() string {
	return "Rejects requests when the queue or the requester's share of it is full"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{"queue_full", "user_queue_full"}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLimitConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &config,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	f.config = &config
	zlog.Info().Msgf("queue limit filter config: %+v", config)
	return nil
}

func (f *QueueLimitFilter) AppliesTo(stage Stage) bool {
	// Checked before resolution so a full queue does not cost a lookup
	return stage == StageQuery
}

func (f *QueueLimitFilter) Check(ctx context.Context, req Request, t *track.Track) Result {
	if f.config == nil {
		return Accept()
	}

	if len(req.Queued) >= f.config.MaxTracks {
		return Reject("queue_full")
	}

	if f.config.MaxPerUser > 0 && req.Requester.ID != "" {
		mine := 0
		for _, q := range req.Queued {
			if q.Requester.ID == req.Requester.ID {
				mine++
			}
		}
		if mine >= f.config.MaxPerUser {
			return Reject("user_queue_full")
		}
	}
	return Accept()
}

func init() {
	Register("queue_limit_filter", func() Filter {
		return &QueueLimitFilter{}
	})
}

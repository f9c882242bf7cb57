package discord

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/infra/config"
)

// ErrOwnerOnly is returned when a non-owner invokes an owner-only command.
var ErrOwnerOnly = errors.New("command is restricted to bot owners")

// commandFunc executes one command invocation.
type commandFunc func(ctx context.Context, inv Invocation) error

// ownerOnly wraps next so only configured owners can run it.
func ownerOnly(cfg *config.Config, next commandFunc) commandFunc {
	return func(ctx context.Context, inv Invocation) error {
		if !cfg.IsOwner(inv.Author.ID) {
			zlog.Warn().Msgf("owner-only command denied: cid=%s user=%s command=%s", inv.ID, inv.Author.ID, inv.Command)
			return ErrOwnerOnly
		}
		return next(ctx, inv)
	}
}

// Package resolver turns user search terms into playable tracks by trying a
// chain of providers.
package resolver

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/jukebot/internal/domain/track"
	"github.com/osa030/jukebot/internal/infra/spotify"
)

// ErrNotHandled is returned by a provider that does not recognize the term.
var ErrNotHandled = errors.New("term not handled by provider")

// Provider is the interface for track providers.
// A provider returns ErrNotHandled for terms outside its scope so the chain
// can try the next one.
type Provider interface {
	Resolve(ctx context.Context, term string) (track.Track, error)

	// Name returns the provider name (used in logs).
	Name() string
}

// MediaResolver resolves any term or media URL into a track.
type MediaResolver interface {
	Resolve(ctx context.Context, term string) (track.Track, error)
}

// SpotifyClient defines the Spotify operations needed for link expansion.
type SpotifyClient interface {
	SearchTerm(ctx context.Context, link spotify.Link) (string, error)
}

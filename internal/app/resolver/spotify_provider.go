package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/domain/track"
	"github.com/osa030/jukebot/internal/infra/spotify"
)

const spotifyProviderName = "spotify"

// SpotifyProvider expands Spotify track, album and playlist links into a
// search term and resolves it with the media resolver.
type SpotifyProvider struct {
	client SpotifyClient
	media  MediaResolver
}

// NewSpotifyProvider creates a new Spotify link provider.
func NewSpotifyProvider(client SpotifyClient, media MediaResolver) *SpotifyProvider {
	return &SpotifyProvider{client: client, media: media}
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return spotifyProviderName
}

// Resolve resolves a Spotify link. Other terms are not handled.
func (p *SpotifyProvider) Resolve(ctx context.Context, term string) (track.Track, error) {
	link, ok := spotify.ParseLink(term)
	if !ok {
		return track.Track{}, ErrNotHandled
	}

	query, err := p.client.SearchTerm(ctx, link)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "failed to expand spotify %s %s", link.Kind, link.ID)
	}
	zlog.Debug().Msgf("expanded spotify link: kind=%s id=%s query=%q", link.Kind, link.ID, query)

	return p.media.Resolve(ctx, query)
}

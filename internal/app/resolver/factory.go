package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/infra/config"
	"github.com/osa030/jukebot/internal/infra/spotify"
	"github.com/osa030/jukebot/internal/infra/ytdlp"
)

// NewProviderChainFromConfig creates a provider chain from configuration.
// Spotify link expansion is registered only when credentials are configured.
func NewProviderChainFromConfig(ctx context.Context, cfg *config.Config) (*ProviderChain, error) {
	media := ytdlp.New(ytdlp.Config{
		Format:       cfg.Resolver.Format,
		SearchPrefix: cfg.Resolver.SearchPrefix,
		Timeout:      cfg.ResolveTimeout(),
	})

	var providers []Provider
	if cfg.SpotifyEnabled() {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create spotify client")
		}
		providers = append(providers, NewSpotifyProvider(client, media))
		zlog.Info().Msgf("registered provider: name=%s market=%s", spotifyProviderName, cfg.Spotify.Market)
	} else {
		zlog.Info().Msg("spotify credentials not configured, spotify links will be searched as text")
	}

	providers = append(providers, NewMediaProvider(media))
	zlog.Info().Msgf("registered provider: name=%s format=%s", mediaProviderName, cfg.Resolver.Format)

	return NewProviderChain(providers...), nil
}

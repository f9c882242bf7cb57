package resolver

import (
	"context"

	"github.com/osa030/jukebot/internal/domain/track"
)

const mediaProviderName = "ytdlp"

// MediaProvider handles every term with the media resolver. It belongs at
// the end of a chain.
type MediaProvider struct {
	media MediaResolver
}

// NewMediaProvider creates a catch-all provider.
func NewMediaProvider(media MediaResolver) *MediaProvider {
	return &MediaProvider{media: media}
}

// Name returns the provider name.
func (p *MediaProvider) Name() string {
	return mediaProviderName
}

// Resolve resolves term with the media resolver.
func (p *MediaProvider) Resolve(ctx context.Context, term string) (track.Track, error) {
	return p.media.Resolve(ctx, term)
}

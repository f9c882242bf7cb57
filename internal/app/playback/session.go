package playback

import (
	"context"

	"github.com/osa030/jukebot/internal/domain/track"
)

// AudioSession is one open audio stream connection to a voice channel.
//
// done passed to Start is invoked exactly once for every successful Start,
// whether the stream ended naturally or was stopped. It may be invoked from
// any goroutine, including synchronously from Stop or after Close.
type AudioSession interface {
	Start(streamURL, codec string, done func(err error)) error
	Stop()
	Pause()
	Resume()
	IsPlaying() bool
	IsPaused() bool
	Close() error
}

// Dialer opens audio sessions to voice channels.
type Dialer interface {
	Open(ctx context.Context, guildID, channelID string) (AudioSession, error)
}

// Resolver turns a search term or URL into a playable track.
// Implementations may block on network I/O for a long time.
type Resolver interface {
	Resolve(ctx context.Context, term string) (track.Track, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, term string) (track.Track, error)

// Resolve calls f(ctx, term).
func (f ResolverFunc) Resolve(ctx context.Context, term string) (track.Track, error) {
	return f(ctx, term)
}

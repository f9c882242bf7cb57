// Package voice streams audio into Discord voice channels.
package voice

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/app/playback"
)

const readyPollInterval = 50 * time.Millisecond

// ErrNotReady is returned when a voice connection does not become ready in time.
var ErrNotReady = errors.New("voice connection not ready")

// Config represents audio session settings.
type Config struct {
	FFmpegPath    string
	BitrateKbps   int
	ReadyTimeout  time.Duration
	// TranscodeOpus re-encodes Opus sources instead of copying their packets.
	TranscodeOpus bool
}

// Dialer opens voice sessions through a Discord gateway session.
type Dialer struct {
	dg  *discordgo.Session
	cfg Config
}

// NewDialer creates a new voice dialer.
func NewDialer(dg *discordgo.Session, cfg Config) *Dialer {
	return &Dialer{dg: dg, cfg: cfg}
}

// Open joins channelID in guildID and returns a session streaming to it.
func (d *Dialer) Open(ctx context.Context, guildID, channelID string) (playback.AudioSession, error) {
	vc, err := d.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to join voice channel %s", channelID)
	}

	if err := waitReady(ctx, vc, d.cfg.ReadyTimeout); err != nil {
		if dErr := vc.Disconnect(); dErr != nil {
			zlog.Warn().Msgf("failed to disconnect unready voice connection: guild=%s error=%v", guildID, dErr)
		}
		return nil, err
	}

	zlog.Info().Msgf("joined voice channel: guild=%s channel=%s", guildID, channelID)
	return NewSession(discordConn{vc: vc}, d.cfg), nil
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ErrNotReady, "channel %s: %v", vc.ChannelID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// discordConn adapts a discordgo voice connection to conn.
type discordConn struct {
	vc *discordgo.VoiceConnection
}

func (c discordConn) Speaking(b bool) error {
	return c.vc.Speaking(b)
}

func (c discordConn) Disconnect() error {
	return c.vc.Disconnect()
}

func (c discordConn) OpusSend() chan<- []byte {
	return c.vc.OpusSend
}

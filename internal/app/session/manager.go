// Package session provides the per-guild session manager.
package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/app/filter"
	"github.com/osa030/jukebot/internal/app/notification"
	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/app/session/registry"
	"github.com/osa030/jukebot/internal/domain/track"
	"github.com/osa030/jukebot/internal/infra/config"
)

// Announcer delivers announcements to the text channel a guild last used.
type Announcer interface {
	Subscribe(guildID, channelID string)
	Unsubscribe(guildID string)
	Announce(guildID, text string) error
}

// PlayRequest describes a play command issued in a guild.
type PlayRequest struct {
	GuildID        string
	TextChannelID  string
	VoiceChannelID string
	Term           string
	Requester      track.Requester
}

// Manager owns one playback controller per guild and relays their events
// to the guild's announcement channel.
type Manager struct {
	config      *config.Config
	registry    *registry.ControllerRegistry
	filterChain *filter.Chain
	formatter   *notification.Formatter
	announcer   Announcer
	dialer      playback.Dialer
	resolver    playback.Resolver

	pumps     sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a new session manager.
func NewManager(
	cfg *config.Config,
	dialer playback.Dialer,
	resolver playback.Resolver,
	announcer Announcer,
) (*Manager, error) {
	chain, err := filter.NewChainFromConfig(filterSettings(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create filter chain")
	}

	return &Manager{
		config:      cfg,
		registry:    registry.NewControllerRegistry(),
		filterChain: chain,
		formatter:   notification.NewFormatter(cfg, cfg.Playback.ListingMaxChars),
		announcer:   announcer,
		dialer:      dialer,
		resolver:    resolver,
	}, nil
}

func filterSettings(cfg *config.Config) map[string]filter.Settings {
	settings := make(map[string]filter.Settings, len(cfg.Filters))
	for name, f := range cfg.Filters {
		settings[name] = filter.Settings{Enabled: f.Enabled, Settings: f.Settings}
	}
	return settings
}

// Formatter returns the formatter used for announcements.
func (m *Manager) Formatter() *notification.Formatter {
	return m.formatter
}

// Filters returns the active filter chain.
func (m *Manager) Filters() *filter.Chain {
	return m.filterChain
}

// Touch records textChannelID as the guild's announcement channel.
func (m *Manager) Touch(guildID, textChannelID string) {
	if textChannelID != "" {
		m.announcer.Subscribe(guildID, textChannelID)
	}
}

// controller returns the guild's controller, creating it on first use.
func (m *Manager) controller(guildID string) (*playback.Controller, error) {
	c, created, err := m.registry.GetOrCreate(guildID, func() *playback.Controller {
		// Counted under the registry lock so Close never waits before this Add.
		m.pumps.Add(1)
		return playback.NewController(guildID, playback.Config{IdleTimeout: m.config.IdleTimeout()}, m.dialer, m.resolver)
	})
	if err != nil {
		return nil, errors.Mark(err, playback.ErrClosed)
	}
	if created {
		zlog.Info().Msgf("playback controller created: guild=%s", guildID)
		go func() {
			defer m.pumps.Done()
			m.playbackLoop(c)
		}()
	}
	return c, nil
}

// existing returns the guild's controller without creating one.
func (m *Manager) existing(guildID string) (*playback.Controller, error) {
	c, err := m.registry.Get(guildID)
	if err != nil {
		return nil, playback.ErrNotConnected
	}
	return c, nil
}

// Connect joins voiceChannelID in the guild.
func (m *Manager) Connect(ctx context.Context, guildID, voiceChannelID string) error {
	if voiceChannelID == "" {
		return playback.ErrNoVoiceChannel
	}
	c, err := m.controller(guildID)
	if err != nil {
		return err
	}
	return c.Connect(ctx, voiceChannelID)
}

// Disconnect leaves the guild's voice channel.
func (m *Manager) Disconnect(ctx context.Context, guildID string) error {
	c, err := m.existing(guildID)
	if err != nil {
		return err
	}
	return c.Disconnect(ctx)
}

// Forget drops everything held for a guild the bot no longer belongs to:
// the voice session, the controller and the announcement channel.
func (m *Manager) Forget(ctx context.Context, guildID string) error {
	m.announcer.Unsubscribe(guildID)
	c, ok := m.registry.Remove(guildID)
	if !ok {
		return nil
	}
	zlog.Info().Msgf("forgetting guild: guild=%s", guildID)
	return c.Close(ctx)
}

// Play runs the request through the filter chain, then resolves and
// enqueues it.
func (m *Manager) Play(ctx context.Context, req PlayRequest) (playback.PlayResult, error) {
	c, err := m.controller(req.GuildID)
	if err != nil {
		return playback.PlayResult{}, err
	}
	m.Touch(req.GuildID, req.TextChannelID)

	freq := filter.Request{
		GuildID:   req.GuildID,
		Term:      req.Term,
		Requester: req.Requester,
	}
	if freq.Queued, err = m.queued(ctx, c); err != nil {
		return playback.PlayResult{}, err
	}
	if err := m.filterChain.Execute(ctx, filter.StageQuery, freq, nil).Err(); err != nil {
		zlog.Info().Msgf("play rejected: guild=%s requester=%s term=%q error=%v", req.GuildID, req.Requester.Name, req.Term, err)
		return playback.PlayResult{}, err
	}

	return c.Play(ctx, playback.PlayRequest{
		Term:           req.Term,
		Requester:      req.Requester,
		VoiceChannelID: req.VoiceChannelID,
		Admit: func(t track.Track) error {
			// The queue may have moved while resolving.
			if queued, err := m.queued(ctx, c); err == nil {
				freq.Queued = queued
			}
			if err := m.filterChain.Execute(ctx, filter.StageTrack, freq, &t).Err(); err != nil {
				zlog.Info().Msgf("track rejected: guild=%s requester=%s title=%q error=%v", req.GuildID, req.Requester.Name, t.Title, err)
				return err
			}
			return nil
		},
	})
}

// queued returns the current track followed by the queue.
func (m *Manager) queued(ctx context.Context, c *playback.Controller) ([]track.Track, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	queued := make([]track.Track, 0, len(st.Queue)+1)
	if st.Current != nil {
		queued = append(queued, *st.Current)
	}
	return append(queued, st.Queue...), nil
}

// Skip skips the guild's current track.
func (m *Manager) Skip(ctx context.Context, guildID string) (track.Track, error) {
	c, err := m.existing(guildID)
	if err != nil {
		return track.Track{}, err
	}
	return c.Skip(ctx)
}

// Shuffle shuffles the guild's queue.
func (m *Manager) Shuffle(ctx context.Context, guildID string) (int, error) {
	c, err := m.existing(guildID)
	if err != nil {
		return 0, err
	}
	return c.Shuffle(ctx)
}

// Pause pauses the guild's current track.
func (m *Manager) Pause(ctx context.Context, guildID string) error {
	c, err := m.existing(guildID)
	if err != nil {
		return err
	}
	return c.Pause(ctx)
}

// Resume resumes the guild's paused track.
func (m *Manager) Resume(ctx context.Context, guildID string) error {
	c, err := m.existing(guildID)
	if err != nil {
		return err
	}
	return c.Resume(ctx)
}

// Stop stops playback and clears the guild's queue.
func (m *Manager) Stop(ctx context.Context, guildID string) (int, error) {
	c, err := m.existing(guildID)
	if err != nil {
		return 0, err
	}
	return c.Stop(ctx)
}

// Status returns the guild's playback snapshot. Guilds without a controller
// report Disconnected.
func (m *Manager) Status(ctx context.Context, guildID string) (playback.Status, error) {
	c, err := m.registry.Get(guildID)
	if err != nil {
		return playback.Status{GuildID: guildID, State: playback.StateDisconnected}, nil
	}
	return c.Status(ctx)
}

// Statuses returns snapshots of every connected guild.
func (m *Manager) Statuses(ctx context.Context) ([]playback.Status, error) {
	var result []playback.Status
	for _, c := range m.registry.All() {
		st, err := c.Status(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "status for guild %s", c.GuildID())
		}
		if st.State.IsConnected() {
			result = append(result, st)
		}
	}
	return result, nil
}

// Close disconnects every guild and stops the event pumps.
func (m *Manager) Close(ctx context.Context) error {
	var errs error
	m.closeOnce.Do(func() {
		for _, c := range m.registry.Close() {
			if err := c.Close(ctx); err != nil {
				zlog.Warn().Msgf("failed to close controller: guild=%s error=%v", c.GuildID(), err)
				errs = errors.CombineErrors(errs, err)
			}
		}
		m.pumps.Wait()
		zlog.Info().Msg("session manager closed")
	})
	return errs
}

// playbackLoop relays controller events until the controller closes.
func (m *Manager) playbackLoop(c *playback.Controller) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback loop panicked: guild=%s panic=%v", c.GuildID(), r)
			// Restart so the event channel keeps draining.
			zlog.Info().Msgf("restarting playback loop: guild=%s", c.GuildID())
			m.pumps.Add(1)
			go func() {
				defer m.pumps.Done()
				m.playbackLoop(c)
			}()
		}
	}()

	for event := range c.Events() {
		m.handlePlaybackEvent(event)
	}
}

// handlePlaybackEvent announces events no command reply covers.
func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("playback event: guild=%s type=%s state=%s advanced=%t",
		event.GuildID, event.Type, event.State, event.Advanced)

	text, ok := m.formatter.Event(event)
	if !ok {
		return
	}
	if err := m.announcer.Announce(event.GuildID, text); err != nil {
		zlog.Warn().Msgf("failed to announce: guild=%s type=%s error=%v", event.GuildID, event.Type, err)
	}
}

// Package notification renders user-visible texts and announces playback
// events to the text channel each guild last used.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultSendTimeout = 5 * time.Second

// Sender delivers a text message to a chat channel.
type Sender interface {
	Send(ctx context.Context, channelID, text string) error
}

// Manager tracks the announcement channel per guild and sends
// announcements to it.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]string // guild ID -> text channel ID
	sender   Sender
	timeout  time.Duration
}

// NewManager creates a new notification manager.
func NewManager(sender Sender) *Manager {
	return &Manager{
		channels: make(map[string]string),
		sender:   sender,
		timeout:  defaultSendTimeout,
	}
}

// Subscribe makes channelID the announcement channel for guildID.
func (m *Manager) Subscribe(guildID, channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[guildID] = channelID
}

// Unsubscribe forgets the announcement channel for guildID.
func (m *Manager) Unsubscribe(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, guildID)
}

// Channel returns the announcement channel for guildID.
func (m *Manager) Channel(guildID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[guildID]
	return ch, ok
}

// Announce sends text to the guild's announcement channel.
// Guilds without a channel are skipped. A send that outlives the timeout
// is abandoned.
func (m *Manager) Announce(guildID, text string) error {
	channelID, ok := m.Channel(guildID)
	if !ok {
		zlog.Debug().Msgf("no announcement channel: guild=%s", guildID)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.sender.Send(ctx, channelID, text)
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrapf(err, "announce to channel %s", channelID)
		}
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "announce to channel %s", channelID)
	}
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = make(map[string]string)
}

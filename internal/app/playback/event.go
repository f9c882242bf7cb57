package playback

import "github.com/osa030/jukebot/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventConnected    EventType = iota // Voice session opened
	EventTrackStarted                  // Track started streaming
	EventTrackEnded                    // Track finished (naturally or skipped)
	EventTrackSkipped                  // Track was skipped by a user
	EventTrackFailed                   // Track could not be started
	EventStateChanged                  // Playback paused or resumed
	EventIdle                          // Queue drained; idle timer armed
	EventDisconnected                  // Voice session closed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventTrackFailed:
		return "track_failed"
	case EventStateChanged:
		return "state_changed"
	case EventIdle:
		return "idle"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DisconnectReason explains why a voice session was closed.
type DisconnectReason string

const (
	ReasonCommand     DisconnectReason = "command"
	ReasonIdleTimeout DisconnectReason = "idle_timeout"
	ReasonShutdown    DisconnectReason = "shutdown"
)

// Event represents a playback event.
type Event struct {
	Type     EventType
	GuildID  string
	Track    *track.Track     // Track concerned (nil for some events)
	State    State            // Playback state after the event
	Reason   DisconnectReason // Set for EventDisconnected
	Err      error            // Set for EventTrackFailed
	Advanced bool             // Caused by queue advancement rather than the requesting command
}

// Package playback provides the per-channel-context playback controller.
package playback

// State represents the playback state of one channel context.
type State int

const (
	StateDisconnected  State = iota // No voice session; queue empty
	StateIdle                       // Connected, nothing streaming
	StatePlaying                    // Track is streaming
	StatePaused                     // Track is paused
	StateDisconnecting              // Tearing the voice session down
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// IsConnected reports whether a voice session is held in this state.
func (s State) IsConnected() bool {
	return s == StateIdle || s == StatePlaying || s == StatePaused
}

// IsActive reports whether a track is loaded (playing or paused).
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}

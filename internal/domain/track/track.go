// Package track provides the Track domain entity.
package track

import (
	"time"
)

// Track represents a resolved, playable media reference.
// A Track is never mutated after the resolver returns it.
type Track struct {
	Title     string        // Media title
	PageURL   string        // Human-facing page URL (watch page, track page)
	StreamURL string        // Direct audio stream URL handed to the audio session
	Codec     string        // Audio codec tag reported by the resolver (e.g. "opus")
	Duration  time.Duration // Media duration (zero if unknown or live)
	Uploader  string        // Channel or artist name
	Requester Requester     // Who asked for it
}

// Requester represents the chat user who requested the track.
type Requester struct {
	ID      string // Chat user ID
	Name    string // Display name
	Mention string // Mention markup, e.g. "<@123>"
}

// Label returns the mention if present, otherwise the display name.
func (r Requester) Label() string {
	if r.Mention != "" {
		return r.Mention
	}
	return r.Name
}

// IsLive reports whether the track has no known duration.
func (t *Track) IsLive() bool {
	return t.Duration <= 0
}

// WithRequester returns a copy of the track attributed to r.
func (t Track) WithRequester(r Requester) Track {
	t.Requester = r
	return t
}

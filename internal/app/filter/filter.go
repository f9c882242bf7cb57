// Package filter provides the filter chain for play request validation.
package filter

import (
	"context"

	"github.com/osa030/jukebot/internal/domain/track"
)

// Stage identifies when a filter runs relative to resolution.
type Stage int

const (
	StageQuery Stage = iota // Before resolution; only the search term is known
	StageTrack              // After resolution; the track is known
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageQuery:
		return "query"
	case StageTrack:
		return "track"
	default:
		return "unknown"
	}
}

// Request represents a play request to be validated.
type Request struct {
	GuildID   string
	Term      string
	Requester track.Requester
	Queued    []track.Track // Current track followed by the queue
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "empty_query", "queue_full", "duration_limit_exceeded"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Err returns nil for an accepted result and a *Rejection otherwise.
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	return &Rejection{Code: r.Code}
}

// Rejection is the error form of a rejected Result.
type Rejection struct {
	Code string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return "request rejected: " + r.Code
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter runs at the given stage.
	AppliesTo(stage Stage) bool
	// Check performs the filter check. t is nil at StageQuery.
	Check(ctx context.Context, req Request, t *track.Track) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}

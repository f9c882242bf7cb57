// Package registry keeps one playback controller per guild.
package registry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/jukebot/internal/app/playback"
)

var (
	// ErrUnknownGuild is returned when no controller exists for a guild.
	ErrUnknownGuild = errors.New("no controller for guild")
	// ErrClosed is returned by GetOrCreate after Close.
	ErrClosed = errors.New("controller registry closed")
)

// ControllerRegistry manages playback controllers with thread-safe access.
type ControllerRegistry struct {
	mu          sync.RWMutex
	controllers map[string]*playback.Controller
	closed      bool
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry() *ControllerRegistry {
	return &ControllerRegistry{
		controllers: make(map[string]*playback.Controller),
	}
}

// GetOrCreate returns the guild's controller, creating it with create when
// missing. create runs under the registry lock, so a controller it returns
// is always seen by a later Close. created reports whether create was called.
func (r *ControllerRegistry) GetOrCreate(guildID string, create func() *playback.Controller) (c *playback.Controller, created bool, err error) {
	r.mu.RLock()
	c, ok := r.controllers[guildID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, false, ErrClosed
	}
	if ok {
		return c, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrClosed
	}
	if c, ok := r.controllers[guildID]; ok {
		return c, false, nil
	}
	c = create()
	r.controllers[guildID] = c
	return c, true, nil
}

// Get retrieves the controller for a guild.
func (r *ControllerRegistry) Get(guildID string) (*playback.Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.controllers[guildID]
	if !ok {
		return nil, ErrUnknownGuild
	}
	return c, nil
}

// Remove drops the controller for a guild and returns it.
func (r *ControllerRegistry) Remove(guildID string) (*playback.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.controllers[guildID]
	delete(r.controllers, guildID)
	return c, ok
}

// All returns all controllers ordered by guild ID.
func (r *ControllerRegistry) All() []*playback.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sorted(r.controllers)
}

// Close refuses further creation and hands back every registered controller
// ordered by guild ID. The registry is empty afterwards.
func (r *ControllerRegistry) Close() []*playback.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	result := sorted(r.controllers)
	r.controllers = make(map[string]*playback.Controller)
	return result
}

func sorted(controllers map[string]*playback.Controller) []*playback.Controller {
	result := make([]*playback.Controller, 0, len(controllers))
	for _, c := range controllers {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].GuildID() < result[j].GuildID() })
	return result
}

package playback

import (
	"sync"
	"time"
)

// IdleTimer schedules a single idle-expiry callback that can be re-armed and
// canceled. Every Arm and Cancel advances the generation, so a fire carrying
// an older generation can be recognised as stale by the receiver.
type IdleTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64
	deadline time.Time
	fire     func(gen uint64)
}

// NewIdleTimer creates an unarmed timer that calls fire on expiry.
// fire runs on its own goroutine.
func NewIdleTimer(fire func(gen uint64)) *IdleTimer {
	return &IdleTimer{fire: fire}
}

// Arm cancels any pending instance and schedules a new fire after d.
// It returns the generation of the new instance.
func (t *IdleTimer) Arm(d time.Duration) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.deadline = time.Now().Add(d)
	t.timer = time.AfterFunc(d, func() {
		t.expire(gen)
	})
	return gen
}

// Cancel prevents a pending fire. It is safe to call when unarmed and
// reports whether a pending fire was actually prevented. The generation
// advances even when unarmed, so a fire already in flight becomes stale.
func (t *IdleTimer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	stopped := t.stopLocked()
	t.gen++
	return stopped
}

// Armed reports whether a fire is pending.
func (t *IdleTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Deadline returns when the pending fire is due.
func (t *IdleTimer) Deadline() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		return time.Time{}, false
	}
	return t.deadline, true
}

// Generation returns the current generation.
func (t *IdleTimer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

func (t *IdleTimer) stopLocked() bool {
	if t.timer == nil {
		return false
	}
	stopped := t.timer.Stop()
	t.timer = nil
	t.deadline = time.Time{}
	return stopped
}

func (t *IdleTimer) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.deadline = time.Time{}
	t.mu.Unlock()

	if t.fire != nil {
		t.fire(gen)
	}
}

package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []uint64
}

func (r *fireRecorder) fire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, gen)
}

func (r *fireRecorder) snapshot() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.fired...)
}

func TestIdleTimer_ArmFires(t *testing.T) {
	rec := &fireRecorder{}
	timer := NewIdleTimer(rec.fire)

	gen := timer.Arm(10 * time.Millisecond)
	assert.True(t, timer.Armed())

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{gen}, rec.snapshot())
	assert.False(t, timer.Armed())
	assert.Equal(t, gen, timer.Generation())
}

func TestIdleTimer_CancelPreventsFire(t *testing.T) {
	rec := &fireRecorder{}
	timer := NewIdleTimer(rec.fire)

	gen := timer.Arm(20 * time.Millisecond)
	assert.True(t, timer.Cancel())
	assert.Greater(t, timer.Generation(), gen)

	assert.Never(t, func() bool { return len(rec.snapshot()) > 0 }, 60*time.Millisecond, 5*time.Millisecond)
}

func TestIdleTimer_CancelUnarmedIsNoop(t *testing.T) {
	rec := &fireRecorder{}
	timer := NewIdleTimer(rec.fire)

	assert.False(t, timer.Cancel())
	assert.False(t, timer.Cancel())
	assert.False(t, timer.Armed())

	_, ok := timer.Deadline()
	assert.False(t, ok)
	assert.Empty(t, rec.snapshot())
}

func TestIdleTimer_RearmReplacesPrevious(t *testing.T) {
	rec := &fireRecorder{}
	timer := NewIdleTimer(rec.fire)

	first := timer.Arm(15 * time.Millisecond)
	second := timer.Arm(30 * time.Millisecond)
	assert.NotEqual(t, first, second)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)
	assert.Never(t, func() bool { return len(rec.snapshot()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []uint64{second}, rec.snapshot())
}

func TestIdleTimer_Deadline(t *testing.T) {
	timer := NewIdleTimer(nil)
	before := time.Now()

	timer.Arm(time.Minute)
	deadline, ok := timer.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(time.Minute), deadline, time.Second)

	timer.Cancel()
	_, ok = timer.Deadline()
	assert.False(t, ok)
}

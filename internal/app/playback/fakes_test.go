package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/osa030/jukebot/internal/domain/track"
)

type fakeSession struct {
	mu       sync.Mutex
	starts   []string
	done     func(error)
	playing  bool
	paused   bool
	closed   int
	startErr map[string]error
}

func newFakeSession() *fakeSession {
	return &fakeSession{startErr: make(map[string]error)}
}

func (f *fakeSession) Start(streamURL, codec string, done func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.startErr[streamURL]; err != nil {
		return err
	}
	f.starts = append(f.starts, streamURL)
	f.done = done
	f.playing = true
	f.paused = false
	return nil
}

// Stop invokes done synchronously, the harshest behavior allowed.
func (f *fakeSession) Stop() {
	f.mu.Lock()
	done := f.done
	f.done = nil
	f.playing = false
	f.paused = false
	f.mu.Unlock()
	if done != nil {
		done(nil)
	}
}

func (f *fakeSession) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playing {
		f.playing = false
		f.paused = true
	}
}

func (f *fakeSession) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paused {
		f.paused = false
		f.playing = true
	}
}

func (f *fakeSession) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeSession) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// finish simulates the stream reaching its natural end.
func (f *fakeSession) finish(err error) {
	f.mu.Lock()
	done := f.done
	f.done = nil
	f.playing = false
	f.paused = false
	f.mu.Unlock()
	if done != nil {
		done(err)
	}
}

func (f *fakeSession) failOn(streamURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr[streamURL] = errors.New("stream refused")
}

func (f *fakeSession) startedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.starts...)
}

func (f *fakeSession) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.starts)
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDialer struct {
	mu      sync.Mutex
	session *fakeSession
	opens   []string
	err     error
}

func (d *fakeDialer) Open(ctx context.Context, guildID, channelID string) (AudioSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.opens = append(d.opens, channelID)
	return d.session, nil
}

func (d *fakeDialer) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opens)
}

func testTrack(term string) track.Track {
	return track.Track{
		Title:     term,
		PageURL:   "https://example.com/watch/" + term,
		StreamURL: "stream://" + term,
		Codec:     "opus",
		Duration:  3 * time.Minute,
	}
}

var testResolver = ResolverFunc(func(ctx context.Context, term string) (track.Track, error) {
	if term == "missing" {
		return track.Track{}, errors.New("no results")
	}
	return testTrack(term), nil
})

// gatedResolver blocks every resolution until release is closed.
type gatedResolver struct {
	entered chan string
	release chan struct{}
}

func newGatedResolver() *gatedResolver {
	return &gatedResolver{entered: make(chan string, 8), release: make(chan struct{})}
}

func (g *gatedResolver) Resolve(ctx context.Context, term string) (track.Track, error) {
	g.entered <- term
	select {
	case <-g.release:
		return testTrack(term), nil
	case <-ctx.Done():
		return track.Track{}, ctx.Err()
	}
}

// eventRecorder drains a controller's events until the channel closes.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func recordEvents(c *Controller) *eventRecorder {
	r := &eventRecorder{}
	go func() {
		for e := range c.Events() {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *eventRecorder) has(match func(Event) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if match(e) {
			return true
		}
	}
	return false
}

const testGuild = "guild-1"

func newTestController(t *testing.T, idle time.Duration, resolver Resolver) (*Controller, *fakeSession, *fakeDialer) {
	t.Helper()
	session := newFakeSession()
	dialer := &fakeDialer{session: session}
	c := NewController(testGuild, Config{IdleTimeout: idle}, dialer, resolver)
	t.Cleanup(func() {
		_ = c.Close(context.Background())
	})
	return c, session, dialer
}

func play(t *testing.T, c *Controller, term string) PlayResult {
	t.Helper()
	res, err := c.Play(context.Background(), PlayRequest{
		Term:           term,
		Requester:      track.Requester{ID: "u1", Name: "alice"},
		VoiceChannelID: "voice-1",
	})
	require.NoError(t, err)
	return res
}

func status(t *testing.T, c *Controller) Status {
	t.Helper()
	st, err := c.Status(context.Background())
	require.NoError(t, err)
	return st
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := c.Status(context.Background())
		return err == nil && st.State == want
	}, time.Second, 5*time.Millisecond, "state never became %s", want)
}

package playback

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/jukebot/internal/domain/track"
)

func TestController_FirstPlayStartsSecondQueues(t *testing.T) {
	c, session, dialer := newTestController(t, time.Minute, testResolver)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, "voice-1"))
	assert.Equal(t, StateIdle, status(t, c).State)

	first := play(t, c, "a")
	assert.True(t, first.Started)
	assert.Equal(t, "a", first.Track.Title)
	assert.Equal(t, "alice", first.Track.Requester.Name)

	second := play(t, c, "b")
	assert.False(t, second.Started)
	assert.Equal(t, 1, second.Position)

	st := status(t, c)
	assert.Equal(t, StatePlaying, st.State)
	require.NotNil(t, st.Current)
	assert.Equal(t, "a", st.Current.Title)
	require.Len(t, st.Queue, 1)
	assert.Equal(t, "b", st.Queue[0].Title)
	assert.True(t, st.IdleDeadline.IsZero())

	assert.Equal(t, []string{"stream://a"}, session.startedURLs())
	assert.Equal(t, 1, dialer.openCount())
}

func TestController_PlayAutoConnects(t *testing.T) {
	c, _, dialer := newTestController(t, time.Minute, testResolver)

	res := play(t, c, "a")
	assert.True(t, res.Started)
	assert.Equal(t, 1, dialer.openCount())
	assert.Equal(t, "voice-1", status(t, c).ChannelID)

	play(t, c, "b")
	assert.Equal(t, 1, dialer.openCount(), "session must be reused")
}

func TestController_ConnectPreconditions(t *testing.T) {
	tests := []struct {
		name      string
		dialErr   error
		channelID string
		wantErr   error
		wantState State
	}{
		{
			name:      "No voice channel",
			channelID: "",
			wantErr:   ErrNoVoiceChannel,
			wantState: StateDisconnected,
		},
		{
			name:      "Dial failure",
			dialErr:   errors.New("gateway timeout"),
			channelID: "voice-1",
			wantErr:   ErrSessionFailure,
			wantState: StateDisconnected,
		},
		{
			name:      "Success",
			channelID: "voice-1",
			wantState: StateIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, dialer := newTestController(t, time.Minute, testResolver)
			dialer.err = tt.dialErr

			err := c.Connect(context.Background(), tt.channelID)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantState, status(t, c).State)
		})
	}
}

func TestController_ConnectWhenConnected(t *testing.T) {
	c, _, dialer := newTestController(t, time.Minute, testResolver)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, "voice-1"))
	assert.NoError(t, c.Connect(ctx, "voice-1"))
	assert.ErrorIs(t, c.Connect(ctx, "voice-2"), ErrAlreadyConnected)
	assert.Equal(t, 1, dialer.openCount())
}

func TestController_PlayWithoutVoiceChannel(t *testing.T) {
	c, _, dialer := newTestController(t, time.Minute, testResolver)

	_, err := c.Play(context.Background(), PlayRequest{Term: "a"})
	assert.ErrorIs(t, err, ErrNoVoiceChannel)
	assert.Equal(t, StateDisconnected, status(t, c).State)
	assert.Equal(t, 0, dialer.openCount())
}

func TestController_PlayRejections(t *testing.T) {
	tests := []struct {
		name    string
		term    string
		admit   func(track.Track) error
		wantErr error
	}{
		{
			name:    "Blank term",
			term:    "   ",
			wantErr: ErrEmptyQuery,
		},
		{
			name:    "Unresolvable term",
			term:    "missing",
			wantErr: ErrUnresolved,
		},
		{
			name: "Admission refused",
			term: "a",
			admit: func(track.Track) error {
				return ErrNotPlaying
			},
			wantErr: ErrNotPlaying,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, session, _ := newTestController(t, time.Minute, testResolver)
			require.NoError(t, c.Connect(context.Background(), "voice-1"))

			_, err := c.Play(context.Background(), PlayRequest{
				Term:           tt.term,
				VoiceChannelID: "voice-1",
				Admit:          tt.admit,
			})
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			st := status(t, c)
			assert.Equal(t, StateIdle, st.State)
			assert.Empty(t, st.Queue)
			assert.Zero(t, session.startCount())
		})
	}
}

func TestController_StopAlwaysEmptiesQueue(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, c *Controller)
		wantErr error
	}{
		{
			name:    "Idle",
			setup:   func(t *testing.T, c *Controller) {},
			wantErr: ErrNotPlaying,
		},
		{
			name: "Playing",
			setup: func(t *testing.T, c *Controller) {
				play(t, c, "a")
				play(t, c, "b")
				play(t, c, "c")
			},
		},
		{
			name: "Paused",
			setup: func(t *testing.T, c *Controller) {
				play(t, c, "a")
				play(t, c, "b")
				require.NoError(t, c.Pause(context.Background()))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestController(t, time.Minute, testResolver)
			require.NoError(t, c.Connect(context.Background(), "voice-1"))
			tt.setup(t, c)

			_, err := c.Stop(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			st := status(t, c)
			assert.Equal(t, StateIdle, st.State)
			assert.Empty(t, st.Queue)
			assert.Nil(t, st.Current)
			assert.False(t, st.IdleDeadline.IsZero(), "idle timer must be armed")
		})
	}
}

func TestController_StopReportsClearedCount(t *testing.T) {
	c, _, _ := newTestController(t, time.Minute, testResolver)
	play(t, c, "a")
	play(t, c, "b")
	play(t, c, "c")

	cleared, err := c.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)
}

func TestController_StatusQueueDuration(t *testing.T) {
	c, _, _ := newTestController(t, time.Minute, testResolver)
	play(t, c, "a")
	play(t, c, "b")
	play(t, c, "c")

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Queue, 2)
	assert.Equal(t, 6*time.Minute, st.QueueDuration, "the current track is not counted")

	_, err = c.Stop(context.Background())
	require.NoError(t, err)
	st, err = c.Status(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.QueueDuration)
}

func TestController_SkipEveryTrack(t *testing.T) {
	c, session, _ := newTestController(t, time.Minute, testResolver)
	terms := []string{"a", "b", "c"}
	for _, term := range terms {
		play(t, c, term)
	}

	for i := range terms {
		skipped, err := c.Skip(context.Background())
		require.NoError(t, err)
		assert.Equal(t, terms[i], skipped.Title)

		if i < len(terms)-1 {
			want := i + 2
			require.Eventually(t, func() bool { return session.startCount() == want }, time.Second, 5*time.Millisecond)
		}
	}

	waitState(t, c, StateIdle)
	assert.Equal(t, len(terms), session.startCount())
	assert.Equal(t, []string{"stream://a", "stream://b", "stream://c"}, session.startedURLs())
}

func TestController_SkipStartsNext(t *testing.T) {
	c, _, _ := newTestController(t, time.Minute, testResolver)
	play(t, c, "a")
	play(t, c, "b")

	_, err := c.Skip(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := status(t, c)
		return st.State == StatePlaying && st.Current != nil && st.Current.Title == "b"
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, status(t, c).Queue)
}

func TestController_SkipWhilePaused(t *testing.T) {
	c, _, _ := newTestController(t, time.Minute, testResolver)
	play(t, c, "a")
	play(t, c, "b")
	require.NoError(t, c.Pause(context.Background()))

	_, err := c.Skip(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := status(t, c)
		return st.State == StatePlaying && st.Current != nil && st.Current.Title == "b"
	}, time.Second, 5*time.Millisecond)
}

func TestController_NaturalEndWithEmptyQueueGoesIdle(t *testing.T) {
	c, session, _ := newTestController(t, time.Minute, testResolver)
	rec := recordEvents(c)
	play(t, c, "a")

	session.finish(nil)

	waitState(t, c, StateIdle)
	st := status(t, c)
	assert.Nil(t, st.Current)
	assert.False(t, st.IdleDeadline.IsZero(), "idle timer must be armed")
	require.Eventually(t, func() bool {
		return rec.has(func(e Event) bool { return e.Type == EventTrackEnded && e.Track != nil && e.Track.Title == "a" })
	}, time.Second, 5*time.Millisecond)
}

func TestController_NaturalEndAdvances(t *testing.T) {
	c, session, _ := newTestController(t, time.Minute, testResolver)
	rec := recordEvents(c)
	play(t, c, "a")
	play(t, c, "b")

	session.finish(errors.New("connection reset"))

	require.Eventually(t, func() bool { return session.startCount() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return rec.has(func(e Event) bool { return e.Type == EventTrackStarted && e.Track.Title == "b" && e.Advanced })
	}, time.Second, 5*time.Millisecond)
	assert.False(t, rec.has(func(e Event) bool { return e.Type == EventTrackStarted && e.Track.Title == "a" && e.Advanced }),
		"a track started by its own play command is not an advance")
	assert.Equal(t, testGuild, status(t, c).GuildID)
}

func TestController_PlayCancelsIdleTimer(t *testing.T) {
	c, session, _ := newTestController(t, 40*time.Millisecond, testResolver)
	require.NoError(t, c.Connect(context.Background(), "voice-1"))

	play(t, c, "a")

	assert.Never(t, func() bool {
		return session.closeCount() > 0
	}, 150*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, StatePlaying, status(t, c).State)
}

func TestController_IdleTimeoutDisconnects(t *testing.T) {
	c, session, _ := newTestController(t, 30*time.Millisecond, testResolver)
	rec := recordEvents(c)
	require.NoError(t, c.Connect(context.Background(), "voice-1"))

	waitState(t, c, StateDisconnected)
	assert.Equal(t, 1, session.closeCount())
	require.Eventually(t, func() bool {
		return rec.has(func(e Event) bool { return e.Type == EventDisconnected && e.Reason == ReasonIdleTimeout })
	}, time.Second, 5*time.Millisecond)

	st := status(t, c)
	assert.Empty(t, st.Queue)
	assert.Empty(t, st.ChannelID)
}

func TestController_IdleTimeoutAfterQueueDrains(t *testing.T) {
	c, session, _ := newTestController(t, 30*time.Millisecond, testResolver)
	play(t, c, "a")

	assert.Never(t, func() bool { return session.closeCount() > 0 }, 80*time.Millisecond, 10*time.Millisecond)

	session.finish(nil)
	waitState(t, c, StateDisconnected)
	assert.Equal(t, 1, session.closeCount())
}

func TestController_PauseResume(t *testing.T) {
	c, session, _ := newTestController(t, time.Minute, testResolver)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, "voice-1"))

	assert.ErrorIs(t, c.Pause(ctx), ErrNotPlaying, "pause in idle")
	assert.ErrorIs(t, c.Resume(ctx), ErrNotPaused, "resume in idle")

	play(t, c, "a")
	assert.ErrorIs(t, c.Resume(ctx), ErrNotPaused, "resume while playing")

	require.NoError(t, c.Pause(ctx))
	assert.Equal(t, StatePaused, status(t, c).State)
	assert.True(t, session.IsPaused())
	assert.ErrorIs(t, c.Pause(ctx), ErrNotPlaying, "pause while paused")

	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, StatePlaying, status(t, c).State)
	assert.True(t, session.IsPlaying())
}

func TestController_CommandsRequireSession(t *testing.T) {
	c, _, _ := newTestController(t, time.Minute, testResolver)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"Disconnect", func() error { return c.Disconnect(ctx) }},
		{"Skip", func() error { _, err := c.Skip(ctx); return err }},
		{"Pause", func() error { return c.Pause(ctx) }},
		{"Resume", func() error { return c.Resume(ctx) }},
		{"Stop", func() error { _, err := c.Stop(ctx); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), ErrNotConnected)
			assert.Equal(t, StateDisconnected, status(t, c).State)
		})
	}
}

func TestController_SkipInIdleRejected(t *testing.T) {
	c, _, _ := newTestController(t, time.Minute, testResolver)
	require.NoError(t, c.Connect(context.Background(), "voice-1"))

	_, err := c.Skip(context.Background())
	assert.ErrorIs(t, err, ErrNotPlaying)
}

func TestController_StaleCompletionIgnored(t *testing.T) {
	c, session, _ := newTestController(t, time.Minute, testResolver)
	play(t, c, "a")

	// Stop fires a's completion, which must not disturb b.
	_, err := c.Stop(context.Background())
	require.NoError(t, err)
	play(t, c, "b")

	assert.Never(t, func() bool {
		st := status(t, c)
		return st.State != StatePlaying || st.Current == nil || st.Current.Title != "b"
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 2, session.startCount())
}

func TestController_Disconnect(t *testing.T) {
	c, session, _ := newTestController(t, time.Minute, testResolver)
	rec := recordEvents(c)
	play(t, c, "a")
	play(t, c, "b")

	require.NoError(t, c.Disconnect(context.Background()))

	st := status(t, c)
	assert.Equal(t, StateDisconnected, st.State)
	assert.Empty(t, st.Queue)
	assert.Nil(t, st.Current)
	assert.Equal(t, 1, session.closeCount())

	// a's completion arrives after close and is discarded.
	assert.Never(t, func() bool { return session.startCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return rec.has(func(e Event) bool { return e.Type == EventDisconnected && e.Reason == ReasonCommand })
	}, time.Second, 5*time.Millisecond)
}

func TestController_StartFailureFallsThrough(t *testing.T) {
	c, session, _ := newTestController(t, time.Minute, testResolver)
	rec := recordEvents(c)
	session.failOn("stream://bad")

	play(t, c, "a")
	play(t, c, "bad")
	play(t, c, "c")

	session.finish(nil)

	require.Eventually(t, func() bool {
		st := status(t, c)
		return st.Current != nil && st.Current.Title == "c"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"stream://a", "stream://c"}, session.startedURLs())
	require.Eventually(t, func() bool {
		return rec.has(func(e Event) bool { return e.Type == EventTrackFailed && e.Track.Title == "bad" })
	}, time.Second, 5*time.Millisecond)
}

func TestController_StartFailureFromIdle(t *testing.T) {
	c, session, _ := newTestController(t, time.Minute, testResolver)
	session.failOn("stream://bad")

	_, err := c.Play(context.Background(), PlayRequest{Term: "bad", VoiceChannelID: "voice-1"})
	assert.True(t, errors.Is(err, ErrSessionFailure), "got %v", err)

	st := status(t, c)
	assert.Equal(t, StateIdle, st.State)
	assert.Empty(t, st.Queue)
	assert.False(t, st.IdleDeadline.IsZero())
}

func TestController_ResolutionAfterStopDoesNotAutoPlay(t *testing.T) {
	resolver := newGatedResolver()
	c, session, _ := newTestController(t, time.Minute, resolver)
	require.NoError(t, c.Connect(context.Background(), "voice-1"))

	type outcome struct {
		res PlayResult
		err error
	}
	result := make(chan outcome, 1)
	go func() {
		res, err := c.Play(context.Background(), PlayRequest{Term: "late", VoiceChannelID: "voice-1"})
		result <- outcome{res, err}
	}()
	<-resolver.entered

	_, err := c.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotPlaying)
	close(resolver.release)

	out := <-result
	require.NoError(t, out.err)
	assert.False(t, out.res.Started)
	assert.Equal(t, 1, out.res.Position)

	st := status(t, c)
	assert.Equal(t, StateIdle, st.State)
	assert.Len(t, st.Queue, 1)
	assert.Zero(t, session.startCount())
}

func TestController_ResolutionAfterDisconnectDropped(t *testing.T) {
	resolver := newGatedResolver()
	c, _, _ := newTestController(t, time.Minute, resolver)
	require.NoError(t, c.Connect(context.Background(), "voice-1"))

	result := make(chan error, 1)
	go func() {
		_, err := c.Play(context.Background(), PlayRequest{Term: "late", VoiceChannelID: "voice-1"})
		result <- err
	}()
	<-resolver.entered

	require.NoError(t, c.Disconnect(context.Background()))
	close(resolver.release)

	assert.ErrorIs(t, <-result, ErrStaleRequest)
	st := status(t, c)
	assert.Equal(t, StateDisconnected, st.State)
	assert.Empty(t, st.Queue)
}

func TestController_ConcurrentPlaysAllQueued(t *testing.T) {
	c, session, _ := newTestController(t, time.Minute, testResolver)
	require.NoError(t, c.Connect(context.Background(), "voice-1"))

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := c.Play(context.Background(), PlayRequest{
				Term:           string(rune('a' + i)),
				VoiceChannelID: "voice-1",
			})
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}

	st := status(t, c)
	assert.Equal(t, StatePlaying, st.State)
	assert.Len(t, st.Queue, n-1)
	assert.Equal(t, 1, session.startCount())
}

func TestController_Shuffle(t *testing.T) {
	c, _, _ := newTestController(t, time.Minute, testResolver)

	n, err := c.Shuffle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, term := range []string{"a", "b", "c", "d"} {
		play(t, c, term)
	}
	n, err = c.Shuffle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	titles := make([]string, 0, 3)
	for _, tr := range status(t, c).Queue {
		titles = append(titles, tr.Title)
	}
	assert.ElementsMatch(t, []string{"b", "c", "d"}, titles)
}

func TestController_Close(t *testing.T) {
	session := newFakeSession()
	c := NewController(testGuild, Config{IdleTimeout: time.Minute}, &fakeDialer{session: session}, testResolver)
	play(t, c, "a")

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, 1, session.closeCount())

	_, open := <-c.Events()
	for open {
		_, open = <-c.Events()
	}

	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, c.Close(context.Background()))
}

package playback

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/domain/queue"
	"github.com/osa030/jukebot/internal/domain/track"
)

// Errors
var (
	ErrNoVoiceChannel   = errors.New("requester is not in a voice channel")
	ErrAlreadyConnected = errors.New("already connected to another voice channel")
	ErrNotConnected     = errors.New("not connected")
	ErrNotPlaying       = errors.New("not playing")
	ErrNotPaused        = errors.New("not paused")
	ErrEmptyQuery       = errors.New("empty query")
	ErrUnresolved       = errors.New("track could not be resolved")
	ErrSessionFailure   = errors.New("audio session failure")
	ErrStaleRequest     = errors.New("request outdated by stop or disconnect")
	ErrClosed           = errors.New("controller closed")
	ErrInternal         = errors.New("internal playback error")
)

const (
	defaultIdleTimeout = 5 * time.Minute
	mailboxSize        = 64
	eventBufferSize    = 32
)

// Config holds controller configuration.
type Config struct {
	IdleTimeout time.Duration // Idle time before the voice session is closed
}

// PlayRequest describes a play command.
type PlayRequest struct {
	Term           string
	Requester      track.Requester
	VoiceChannelID string                  // Channel to join when disconnected
	Admit          func(track.Track) error // Optional check run after resolution
}

// PlayResult describes the outcome of a play command.
type PlayResult struct {
	Track    track.Track
	Started  bool // Track started streaming right away
	Position int  // 1-based queue position when queued
}

// Status is a point-in-time snapshot of a controller.
type Status struct {
	GuildID       string
	State         State
	ChannelID     string
	Current       *track.Track
	Queue         []track.Track
	QueueDuration time.Duration // Sum of known queued durations
	IdleDeadline  time.Time
}

type trigger int

const (
	triggerConnect trigger = iota
	triggerPrepare
	triggerEnqueue
	triggerSkip
	triggerShuffle
	triggerPause
	triggerResume
	triggerStop
	triggerDisconnect
	triggerStatus
	triggerStreamEnded
	triggerIdleExpired
)

func (t trigger) String() string {
	switch t {
	case triggerConnect:
		return "connect"
	case triggerPrepare:
		return "prepare"
	case triggerEnqueue:
		return "enqueue"
	case triggerSkip:
		return "skip"
	case triggerShuffle:
		return "shuffle"
	case triggerPause:
		return "pause"
	case triggerResume:
		return "resume"
	case triggerStop:
		return "stop"
	case triggerDisconnect:
		return "disconnect"
	case triggerStatus:
		return "status"
	case triggerStreamEnded:
		return "stream_ended"
	case triggerIdleExpired:
		return "idle_expired"
	default:
		return "unknown"
	}
}

type message struct {
	trigger   trigger
	ctx       context.Context
	channelID string
	track     track.Track
	epoch     uint64
	gen       uint64
	err       error
	reason    DisconnectReason
	reply     chan reply
}

type reply struct {
	err    error
	epoch  uint64
	play   PlayResult
	track  track.Track
	count  int
	status Status
}

// Controller manages playback for one guild. All state is owned by a single
// goroutine; commands, stream completions and idle expiries are messages.
type Controller struct {
	guildID  string
	config   Config
	dialer   Dialer
	resolver Resolver

	inbox   chan message
	eventCh chan Event
	idle    *IdleTimer

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the run loop
	state     State
	session   AudioSession
	channelID string
	queue     *queue.Queue
	current   *track.Track
	streamGen uint64 // Bumped per Start and on stop; completions carry it
	epoch     uint64 // Bumped on stop and disconnect; play requests carry it
}

// NewController creates a controller for a guild and starts its run loop.
func NewController(guildID string, config Config, dialer Dialer, resolver Resolver) *Controller {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaultIdleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		guildID:  guildID,
		config:   config,
		dialer:   dialer,
		resolver: resolver,
		inbox:    make(chan message, mailboxSize),
		eventCh:  make(chan Event, eventBufferSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    StateDisconnected,
		queue:    queue.New(),
	}
	c.idle = NewIdleTimer(func(gen uint64) {
		c.post(message{trigger: triggerIdleExpired, gen: gen})
	})
	go c.run()
	return c
}

// GuildID returns the guild this controller serves.
func (c *Controller) GuildID() string {
	return c.guildID
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Connect opens a voice session to channelID.
// Connecting again to the current channel is a no-op.
func (c *Controller) Connect(ctx context.Context, channelID string) error {
	_, err := c.do(ctx, message{trigger: triggerConnect, channelID: channelID})
	return err
}

// Disconnect stops playback, clears the queue and closes the voice session.
func (c *Controller) Disconnect(ctx context.Context) error {
	_, err := c.do(ctx, message{trigger: triggerDisconnect, reason: ReasonCommand})
	return err
}

// Play resolves req.Term and enqueues the result, starting playback when idle.
// Resolution runs on the caller's goroutine so slow lookups never block
// other commands for the guild.
func (c *Controller) Play(ctx context.Context, req PlayRequest) (PlayResult, error) {
	term := strings.TrimSpace(req.Term)
	if term == "" {
		return PlayResult{}, ErrEmptyQuery
	}

	prep, err := c.do(ctx, message{trigger: triggerPrepare, channelID: req.VoiceChannelID})
	if err != nil {
		return PlayResult{}, err
	}

	resolved, err := c.resolver.Resolve(ctx, term)
	if err != nil {
		return PlayResult{}, errors.Mark(errors.Wrapf(err, "resolve %q", term), ErrUnresolved)
	}
	resolved = resolved.WithRequester(req.Requester)

	if req.Admit != nil {
		if err := req.Admit(resolved); err != nil {
			return PlayResult{Track: resolved}, err
		}
	}

	r, err := c.do(ctx, message{trigger: triggerEnqueue, track: resolved, epoch: prep.epoch})
	return r.play, err
}

// Skip stops the current track; the next queued track starts on completion.
func (c *Controller) Skip(ctx context.Context) (track.Track, error) {
	r, err := c.do(ctx, message{trigger: triggerSkip})
	return r.track, err
}

// Shuffle randomizes the queue order and returns the queue length.
func (c *Controller) Shuffle(ctx context.Context) (int, error) {
	r, err := c.do(ctx, message{trigger: triggerShuffle})
	return r.count, err
}

// Pause pauses the current track.
func (c *Controller) Pause(ctx context.Context) error {
	_, err := c.do(ctx, message{trigger: triggerPause})
	return err
}

// Resume resumes the paused track.
func (c *Controller) Resume(ctx context.Context) error {
	_, err := c.do(ctx, message{trigger: triggerResume})
	return err
}

// Stop clears the queue and stops the current track.
// It returns the number of queued tracks removed. The queue is cleared
// even when nothing is playing, in which case ErrNotPlaying is returned.
func (c *Controller) Stop(ctx context.Context) (int, error) {
	r, err := c.do(ctx, message{trigger: triggerStop})
	return r.count, err
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	r, err := c.do(ctx, message{trigger: triggerStatus})
	return r.status, err
}

// Close disconnects if needed, stops the run loop and closes the event channel.
func (c *Controller) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		_, err = c.do(ctx, message{trigger: triggerDisconnect, reason: ReasonShutdown})
		if errors.Is(err, ErrNotConnected) {
			err = nil
		}
		c.cancel()
		<-c.done
		// A connect can land between the disconnect above and cancel.
		// The run loop has exited, so the state is ours.
		if c.session != nil {
			if tErr := c.teardown(ReasonShutdown); err == nil {
				err = tErr
			}
		}
		c.idle.Cancel()
		close(c.eventCh)
	})
	return err
}

// do sends a request to the run loop and waits for its reply.
func (c *Controller) do(ctx context.Context, msg message) (reply, error) {
	if c.ctx.Err() != nil {
		return reply{}, ErrClosed
	}
	msg.ctx = ctx
	msg.reply = make(chan reply, 1)

	select {
	case c.inbox <- msg:
	case <-ctx.Done():
		return reply{}, errors.Wrapf(ctx.Err(), "playback %s", msg.trigger)
	case <-c.done:
		return reply{}, ErrClosed
	}

	select {
	case r := <-msg.reply:
		return r, r.err
	case <-ctx.Done():
		return reply{}, errors.Wrapf(ctx.Err(), "playback %s", msg.trigger)
	case <-c.done:
		return reply{}, ErrClosed
	}
}

// post delivers an internal notification without waiting for a reply.
func (c *Controller) post(msg message) {
	msg.ctx = c.ctx
	select {
	case c.inbox <- msg:
	case <-c.done:
	}
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.inbox:
			r := c.dispatch(msg)
			if msg.reply != nil {
				msg.reply <- r
			}
		}
	}
}

func (c *Controller) dispatch(msg message) (r reply) {
	defer func() {
		if rec := recover(); rec != nil {
			zlog.Error().Msgf("Playback handler panicked: guild=%s, trigger=%s, panic=%v", c.guildID, msg.trigger, rec)
			r = reply{err: errors.Wrapf(ErrInternal, "%s: %v", msg.trigger, rec)}
		}
	}()

	zlog.Debug().Msgf("Playback message: guild=%s, trigger=%s, state=%s", c.guildID, msg.trigger, c.state)

	switch msg.trigger {
	case triggerConnect, triggerPrepare:
		return c.handleConnect(msg)
	case triggerEnqueue:
		return c.handleEnqueue(msg)
	case triggerSkip:
		return c.handleSkip()
	case triggerShuffle:
		c.queue.Shuffle()
		return reply{count: c.queue.Len()}
	case triggerPause:
		return c.handlePause()
	case triggerResume:
		return c.handleResume()
	case triggerStop:
		return c.handleStop()
	case triggerDisconnect:
		if c.session == nil {
			return reply{err: ErrNotConnected}
		}
		return reply{err: c.teardown(msg.reason)}
	case triggerStatus:
		return reply{status: c.snapshot()}
	case triggerStreamEnded:
		c.handleStreamEnded(msg)
	case triggerIdleExpired:
		c.handleIdleExpired(msg)
	}
	return reply{}
}

func (c *Controller) handleConnect(msg message) reply {
	if c.session != nil {
		if msg.trigger == triggerPrepare || msg.channelID == "" || msg.channelID == c.channelID {
			return reply{epoch: c.epoch}
		}
		return reply{err: ErrAlreadyConnected}
	}
	if msg.channelID == "" {
		return reply{err: ErrNoVoiceChannel}
	}

	session, err := c.dialer.Open(msg.ctx, c.guildID, msg.channelID)
	if err != nil {
		zlog.Warn().Msgf("Failed to open voice session: guild=%s, channel=%s, error=%v", c.guildID, msg.channelID, err)
		return reply{err: errors.Mark(errors.Wrapf(err, "open voice session %s", msg.channelID), ErrSessionFailure)}
	}

	c.session = session
	c.channelID = msg.channelID
	c.enterIdle()
	zlog.Info().Msgf("Voice session opened: guild=%s, channel=%s", c.guildID, c.channelID)
	c.sendEvent(Event{Type: EventConnected, State: c.state})
	return reply{epoch: c.epoch}
}

func (c *Controller) handleEnqueue(msg message) reply {
	t := msg.track
	if c.session == nil {
		zlog.Debug().Msgf("Dropping stale resolution: guild=%s, title=%s", c.guildID, t.Title)
		return reply{err: errors.Wrapf(ErrStaleRequest, "drop %q", t.Title)}
	}

	c.queue.Enqueue(t)
	if c.state != StateIdle {
		return reply{play: PlayResult{Track: t, Position: c.queue.Len()}}
	}
	if msg.epoch != c.epoch {
		zlog.Debug().Msgf("Queued without auto-play after stop: guild=%s, title=%s", c.guildID, t.Title)
		return reply{play: PlayResult{Track: t, Position: c.queue.Len()}}
	}

	// t is the tail, so it was attempted last. Anything ahead of it was
	// queued without auto-play and is announced as an advance.
	started, err := c.startNext(c.queue.Len() > 1)
	switch {
	case c.queue.Len() > 0:
		return reply{play: PlayResult{Track: t, Position: c.queue.Len()}}
	case started:
		return reply{play: PlayResult{Track: t, Started: true}}
	default:
		return reply{play: PlayResult{Track: t}, err: err}
	}
}

func (c *Controller) handleSkip() reply {
	if c.session == nil {
		return reply{err: ErrNotConnected}
	}
	if !c.state.IsActive() {
		return reply{err: ErrNotPlaying}
	}
	skipped := *c.current
	c.sendEvent(Event{Type: EventTrackSkipped, Track: &skipped, State: c.state})
	c.session.Stop()
	return reply{track: skipped}
}

func (c *Controller) handlePause() reply {
	if c.session == nil {
		return reply{err: ErrNotConnected}
	}
	if c.state != StatePlaying || !c.session.IsPlaying() {
		return reply{err: ErrNotPlaying}
	}
	c.session.Pause()
	c.state = StatePaused
	c.sendEvent(Event{Type: EventStateChanged, Track: c.currentCopy(), State: c.state})
	return reply{}
}

func (c *Controller) handleResume() reply {
	if c.session == nil {
		return reply{err: ErrNotConnected}
	}
	if c.state != StatePaused || !c.session.IsPaused() {
		return reply{err: ErrNotPaused}
	}
	c.session.Resume()
	c.state = StatePlaying
	c.sendEvent(Event{Type: EventStateChanged, Track: c.currentCopy(), State: c.state})
	return reply{}
}

func (c *Controller) handleStop() reply {
	if c.session == nil {
		return reply{err: ErrNotConnected}
	}
	cleared := c.queue.Clear()
	c.epoch++
	if !c.state.IsActive() {
		return reply{count: cleared, err: ErrNotPlaying}
	}

	stopped := c.currentCopy()
	c.streamGen++
	c.session.Stop()
	c.enterIdle()
	zlog.Info().Msgf("Playback stopped: guild=%s, cleared=%d", c.guildID, cleared)
	c.sendEvent(Event{Type: EventIdle, Track: stopped, State: c.state})
	return reply{count: cleared}
}

func (c *Controller) handleStreamEnded(msg message) {
	if msg.gen != c.streamGen || !c.state.IsActive() || c.session == nil {
		zlog.Debug().Msgf("Discarding stale completion: guild=%s, generation=%d, current=%d, state=%s",
			c.guildID, msg.gen, c.streamGen, c.state)
		return
	}
	if msg.err != nil {
		zlog.Warn().Msgf("Stream ended with error: guild=%s, error=%v", c.guildID, msg.err)
	}

	ended := c.currentCopy()
	c.current = nil
	c.sendEvent(Event{Type: EventTrackEnded, Track: ended, State: c.state, Err: msg.err})
	_, _ = c.startNext(true)
}

func (c *Controller) handleIdleExpired(msg message) {
	if c.state != StateIdle || msg.gen != c.idle.Generation() {
		zlog.Debug().Msgf("Discarding stale idle expiry: guild=%s, generation=%d, state=%s", c.guildID, msg.gen, c.state)
		return
	}
	zlog.Info().Msgf("Idle timeout reached, disconnecting: guild=%s, timeout=%v", c.guildID, c.config.IdleTimeout)
	if err := c.teardown(ReasonIdleTimeout); err != nil {
		zlog.Warn().Msgf("Idle disconnect: guild=%s, error=%v", c.guildID, err)
	}
}

// startNext dequeues until a track starts or the queue runs out.
// When the queue runs out the controller goes idle. advanced marks the
// emitted events as queue advancement.
func (c *Controller) startNext(advanced bool) (bool, error) {
	var lastErr error
	for {
		t, ok := c.queue.Dequeue()
		if !ok {
			c.enterIdle()
			c.sendEvent(Event{Type: EventIdle, State: c.state, Advanced: advanced})
			return false, lastErr
		}

		c.streamGen++
		if err := c.session.Start(t.StreamURL, t.Codec, c.completion(c.streamGen)); err != nil {
			lastErr = errors.Mark(errors.Wrapf(err, "start %q", t.Title), ErrSessionFailure)
			zlog.Warn().Msgf("Failed to start track: guild=%s, title=%s, error=%v", c.guildID, t.Title, err)
			c.sendEvent(Event{Type: EventTrackFailed, Track: &t, State: c.state, Err: lastErr, Advanced: advanced})
			continue
		}

		c.idle.Cancel()
		c.current = &t
		c.state = StatePlaying
		zlog.Info().Msgf("Track started: guild=%s, title=%s, requester=%s, queued=%d",
			c.guildID, t.Title, t.Requester.Name, c.queue.Len())
		c.sendEvent(Event{Type: EventTrackStarted, Track: c.currentCopy(), State: c.state, Advanced: advanced})
		return true, nil
	}
}

// completion returns the done callback for a stream generation.
// The post runs on a new goroutine since sessions may call done from Stop.
func (c *Controller) completion(gen uint64) func(error) {
	return func(err error) {
		go c.post(message{trigger: triggerStreamEnded, gen: gen, err: err})
	}
}

func (c *Controller) enterIdle() {
	c.state = StateIdle
	c.current = nil
	gen := c.idle.Arm(c.config.IdleTimeout)
	zlog.Debug().Msgf("Idle timer armed: guild=%s, generation=%d, timeout=%v", c.guildID, gen, c.config.IdleTimeout)
}

// teardown releases the voice session and all per-session state.
func (c *Controller) teardown(reason DisconnectReason) error {
	c.state = StateDisconnecting
	c.idle.Cancel()
	c.epoch++
	c.streamGen++
	cleared := c.queue.Clear()
	if c.current != nil {
		c.session.Stop()
	}
	err := c.session.Close()

	channelID := c.channelID
	c.session = nil
	c.current = nil
	c.channelID = ""
	c.state = StateDisconnected

	zlog.Info().Msgf("Voice session closed: guild=%s, channel=%s, reason=%s, cleared=%d", c.guildID, channelID, reason, cleared)
	c.sendEvent(Event{Type: EventDisconnected, State: c.state, Reason: reason})

	if err != nil {
		return errors.Mark(errors.Wrap(err, "close voice session"), ErrSessionFailure)
	}
	return nil
}

func (c *Controller) snapshot() Status {
	st := Status{
		GuildID:   c.guildID,
		State:     c.state,
		ChannelID: c.channelID,
		Current:       c.currentCopy(),
		Queue:         c.queue.Snapshot(),
		QueueDuration: c.queue.TotalDuration(),
	}
	if c.state == StateIdle {
		if deadline, ok := c.idle.Deadline(); ok {
			st.IdleDeadline = deadline
		}
	}
	return st
}

func (c *Controller) currentCopy() *track.Track {
	if c.current == nil {
		return nil
	}
	t := *c.current
	return &t
}

// sendEvent publishes an event without blocking the run loop.
func (c *Controller) sendEvent(e Event) {
	e.GuildID = c.guildID
	select {
	case c.eventCh <- e:
	default:
		zlog.Warn().Msgf("Playback event dropped: guild=%s, type=%s", c.guildID, e.Type)
	}
}

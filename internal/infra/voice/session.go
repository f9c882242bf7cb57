package voice

import (
	"context"
	"encoding/binary"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"layeh.com/gopus"
)

var (
	// ErrSessionClosed is returned by Start after Close.
	ErrSessionClosed = errors.New("voice session closed")
	// ErrBusy is returned by Start while another stream is active.
	ErrBusy = errors.New("voice session already streaming")
)

// conn is the part of a voice connection a session needs.
type conn interface {
	Speaking(b bool) error
	Disconnect() error
	OpusSend() chan<- []byte
}

// encoder turns one PCM frame into an Opus packet.
type encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

func newOpusEncoder(bitrateKbps int) (encoder, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create opus encoder")
	}
	if bitrateKbps > 0 {
		enc.SetBitrate(bitrateKbps * 1000)
	}
	return enc, nil
}

// packetSource yields one Opus packet per call.
type packetSource interface {
	next() ([]byte, error)
}

// pcmPackets encodes 20ms PCM frames with an Opus encoder.
type pcmPackets struct {
	r      io.Reader
	enc    encoder
	pcmBuf []byte
	intBuf []int16
}

func newPCMPackets(r io.Reader, enc encoder) *pcmPackets {
	return &pcmPackets{
		r:      r,
		enc:    enc,
		pcmBuf: make([]byte, frameSize*channels*2),
		intBuf: make([]int16, frameSize*channels),
	}
}

func (p *pcmPackets) next() ([]byte, error) {
	if _, err := io.ReadFull(p.r, p.pcmBuf); err != nil {
		return nil, err
	}
	for i := range p.intBuf {
		p.intBuf[i] = int16(binary.LittleEndian.Uint16(p.pcmBuf[i*2 : i*2+2]))
	}
	packet, err := p.enc.Encode(p.intBuf, frameSize, len(p.pcmBuf))
	if err != nil {
		return nil, errors.Wrap(err, "encode opus")
	}
	return packet, nil
}

// isOpus reports whether a codec hint names Opus.
func isOpus(codec string) bool {
	return strings.EqualFold(strings.TrimSpace(codec), "opus")
}

// Session streams one track at a time into a voice connection.
type Session struct {
	conn       conn
	openSource sourceOpener
	newEncoder func(bitrateKbps int) (encoder, error)
	bitrate    int
	transcode  bool // re-encode Opus inputs instead of copying them

	mu     sync.Mutex
	active *stream
	closed bool
}

// NewSession creates a session on an established voice connection.
func NewSession(c conn, cfg Config) *Session {
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	return &Session{
		conn:       c,
		openSource: ffmpegOpener(path),
		newEncoder: newOpusEncoder,
		bitrate:    cfg.BitrateKbps,
		transcode:  cfg.TranscodeOpus,
	}
}

// stream is one playing track.
type stream struct {
	cancel context.CancelFunc
	exited chan struct{}

	mu     sync.Mutex
	paused bool
	resume chan struct{} // closed on resume; valid while paused
}

// gate returns a channel to wait on while paused, or nil.
func (st *stream) gate() <-chan struct{} {
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.paused {
		return nil
	}
	return st.resume
}

func (st *stream) isPaused() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.paused
}

// Start streams streamURL. Opus sources are copied packet for packet unless
// transcoding is configured; anything else is decoded and encoded to Opus.
// done is called exactly once when the stream ends naturally, fails, or is
// stopped.
func (s *Session) Start(streamURL, codec string, done func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.active != nil {
		return ErrBusy
	}

	copyOpus := isOpus(codec) && !s.transcode
	var enc encoder
	if !copyOpus {
		var err error
		if enc, err = s.newEncoder(s.bitrate); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	src, err := s.openSource(ctx, streamURL, copyOpus)
	if err != nil {
		cancel()
		return err
	}

	var packets packetSource
	if copyOpus {
		packets = newOggOpusReader(src)
	} else {
		packets = newPCMPackets(src, enc)
	}

	st := &stream{cancel: cancel, exited: make(chan struct{})}
	s.active = st
	zlog.Debug().Msgf("stream starting: codec=%s copy=%t bitrate_kbps=%d", codec, copyOpus, s.bitrate)

	go s.run(ctx, st, src, packets, done)
	return nil
}

func (s *Session) run(ctx context.Context, st *stream, src audioSource, packets packetSource, done func(error)) {
	defer close(st.exited)

	if err := s.conn.Speaking(true); err != nil {
		zlog.Debug().Msgf("failed to set speaking: error=%v", err)
	}

	err := s.send(ctx, st, packets)
	if err != nil {
		// ffmpeg may still be writing; kill it before waiting.
		st.cancel()
	}
	stopped := ctx.Err() != nil && err == nil
	if cErr := src.Close(); err == nil {
		err = cErr
	}
	st.cancel()
	if err != nil && !stopped {
		zlog.Warn().Msgf("stream failed: error=%v", err)
	}

	s.mu.Lock()
	if s.active == st {
		s.active = nil
	}
	s.mu.Unlock()

	if sErr := s.conn.Speaking(false); sErr != nil {
		zlog.Debug().Msgf("failed to clear speaking: error=%v", sErr)
	}
	done(err)
}

// send forwards Opus packets until the source ends or ctx is canceled.
func (s *Session) send(ctx context.Context, st *stream, packets packetSource) error {
	out := s.conn.OpusSend()

	for {
		if gate := st.gate(); gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil
			}
		}

		packet, err := packets.next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return errors.Wrap(err, "read audio")
		}

		select {
		case out <- packet:
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop ends the current stream and waits for it to wind down.
func (s *Session) Stop() {
	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	if st == nil {
		return
	}
	st.cancel()
	<-st.exited
}

// Pause holds the current stream.
func (s *Session) Pause() {
	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.paused {
		st.paused = true
		st.resume = make(chan struct{})
	}
}

// Resume continues a paused stream.
func (s *Session) Resume() {
	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.paused {
		st.paused = false
		close(st.resume)
	}
}

// IsPlaying reports whether a stream is active and not paused.
func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	return st != nil && !st.isPaused()
}

// IsPaused reports whether the active stream is paused.
func (s *Session) IsPaused() bool {
	s.mu.Lock()
	st := s.active
	s.mu.Unlock()
	return st != nil && st.isPaused()
}

// Close stops streaming and leaves the voice channel.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	if err := s.conn.Disconnect(); err != nil {
		return errors.Wrap(err, "failed to disconnect voice")
	}
	return nil
}

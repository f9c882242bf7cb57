package voice

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
	maxStderr  = 4096
)

// audioSource is a running ffmpeg process. It produces s16le stereo PCM at
// 48kHz, or the input's own Opus packets in an Ogg container when copying.
type audioSource interface {
	io.Reader
	// Close stops the process and reports how it exited.
	Close() error
}

// sourceOpener starts reading streamURL. copyOpus selects Ogg Opus output
// without re-encoding.
type sourceOpener func(ctx context.Context, streamURL string, copyOpus bool) (audioSource, error)

// ffmpegSource reads a stream URL through an ffmpeg child process.
type ffmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *cappedBuffer
	ctx    context.Context
}

func ffmpegArgs(streamURL string, copyOpus bool) []string {
	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamURL,
		"-map_metadata", "-1",
		"-vn",
	}
	if copyOpus {
		args = append(args, "-c:a", "copy", "-f", "ogg")
	} else {
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(sampleRate),
			"-ac", strconv.Itoa(channels),
		)
	}
	return append(args, "-loglevel", "warning", "pipe:1")
}

func ffmpegOpener(path string) sourceOpener {
	return func(ctx context.Context, streamURL string, copyOpus bool) (audioSource, error) {
		cmd := exec.CommandContext(ctx, path, ffmpegArgs(streamURL, copyOpus)...)
		stderr := &cappedBuffer{limit: maxStderr}
		cmd.Stderr = stderr

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, errors.Wrap(err, "ffmpeg stdout pipe")
		}
		if err := cmd.Start(); err != nil {
			return nil, errors.Wrapf(err, "failed to start %s", path)
		}
		return &ffmpegSource{cmd: cmd, stdout: stdout, stderr: stderr, ctx: ctx}, nil
	}
}

func (s *ffmpegSource) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Close waits for ffmpeg to exit. An exit caused by cancellation is not an error.
func (s *ffmpegSource) Close() error {
	err := s.cmd.Wait()
	if err == nil || s.ctx.Err() != nil {
		return nil
	}
	if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
		return errors.Wrapf(err, "ffmpeg: %s", msg)
	}
	return errors.Wrap(err, "ffmpeg")
}

// cappedBuffer keeps the first limit bytes written to it.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

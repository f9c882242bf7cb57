package notification

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/osa030/jukebot/internal/app/filter"
	"github.com/osa030/jukebot/internal/app/playback"
	"github.com/osa030/jukebot/internal/domain/track"
)

const defaultListingMaxChars = 1900

// MessageSource looks up user-facing messages by code.
type MessageSource interface {
	GetMessage(code string) string
}

// Formatter renders user-visible texts.
type Formatter struct {
	messages MessageSource
	maxChars int
}

// NewFormatter creates a formatter. Listings are truncated to maxChars.
func NewFormatter(messages MessageSource, maxChars int) *Formatter {
	if maxChars <= 0 {
		maxChars = defaultListingMaxChars
	}
	return &Formatter{messages: messages, maxChars: maxChars}
}

// NowPlaying renders the announcement for a started track.
func (f *Formatter) NowPlaying(t track.Track) string {
	return "Playing " + trackLine(t)
}

// Queued renders the acknowledgement for a queued track.
func (f *Formatter) Queued(t track.Track, position int) string {
	return fmt.Sprintf("Queueing %s (#%d)", trackLine(t), position)
}

// Stopped renders the acknowledgement for a stop command.
func (f *Formatter) Stopped(cleared int) string {
	if cleared == 0 {
		return "Stopped."
	}
	return fmt.Sprintf("Stopped and cleared %d queued track(s).", cleared)
}

// Shuffled renders the acknowledgement for a shuffle command.
func (f *Formatter) Shuffled(n int) string {
	return fmt.Sprintf("Shuffled %d queued track(s).", n)
}

// Listing renders the current track and the queue. Entries that do not fit
// in the configured length are summarized by a trailing "…and N more" line.
func (f *Formatter) Listing(st playback.Status) string {
	if st.Current == nil && len(st.Queue) == 0 {
		return f.messages.GetMessage("empty_queue")
	}

	var lines []string
	if st.Current != nil {
		prefix := "Now playing"
		if st.State == playback.StatePaused {
			prefix = "Paused"
		}
		lines = append(lines, prefix+": "+trackLine(*st.Current))
	}
	for i, t := range st.Queue {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, trackLine(t)))
	}
	return truncateLines(lines, f.maxChars)
}

// Event renders an announcement for an unsolicited playback event.
// It reports false for events the requesting command already answers.
func (f *Formatter) Event(e playback.Event) (string, bool) {
	switch e.Type {
	case playback.EventTrackStarted:
		if e.Advanced && e.Track != nil {
			return f.NowPlaying(*e.Track), true
		}
	case playback.EventTrackFailed:
		if e.Advanced && e.Track != nil {
			return fmt.Sprintf("Could not play %s, skipping.", trackLine(*e.Track)), true
		}
	case playback.EventIdle:
		if e.Advanced {
			return "Queue finished.", true
		}
	case playback.EventDisconnected:
		if e.Reason == playback.ReasonIdleTimeout {
			return "Left the voice channel after being idle.", true
		}
	}
	return "", false
}

// ErrorCode maps an error to a message code. Unknown errors map to
// default_error.
func ErrorCode(err error) string {
	var rej *filter.Rejection
	if errors.As(err, &rej) {
		return rej.Code
	}

	switch {
	case errors.Is(err, playback.ErrNoVoiceChannel):
		return "no_voice_channel"
	case errors.Is(err, playback.ErrAlreadyConnected):
		return "already_connected"
	case errors.Is(err, playback.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, playback.ErrNotPlaying):
		return "not_playing"
	case errors.Is(err, playback.ErrNotPaused):
		return "not_paused"
	case errors.Is(err, playback.ErrEmptyQuery):
		return "empty_query"
	case errors.Is(err, playback.ErrUnresolved):
		return "unresolved_track"
	case errors.Is(err, playback.ErrSessionFailure):
		return "session_failure"
	case errors.Is(err, playback.ErrStaleRequest):
		return "stale_request"
	default:
		return "default_error"
	}
}

// trackLine renders "[TITLE](URL) MENTION" with optional parts omitted.
func trackLine(t track.Track) string {
	title := escapeMarkdown(t.Title)
	if title == "" {
		title = "Untitled"
	}
	s := title
	if t.PageURL != "" {
		s = "[" + title + "](" + t.PageURL + ")"
	}
	if t.Duration > 0 {
		s += " `" + formatDuration(t.Duration) + "`"
	}
	if label := t.Requester.Label(); label != "" {
		s += " " + label
	}
	return s
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var markdownEscaper = strings.NewReplacer("[", "\\[", "]", "\\]", "*", "\\*", "_", "\\_", "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(strings.TrimSpace(s))
}

// truncateLines joins lines with newlines, keeping as many leading lines as
// fit in maxChars together with the "…and N more" tail.
func truncateLines(lines []string, maxChars int) string {
	if all := strings.Join(lines, "\n"); utf8.RuneCountInString(all) <= maxChars {
		return all
	}

	var b strings.Builder
	used := 0
	for i, line := range lines {
		n := utf8.RuneCountInString(line)
		if i > 0 {
			n++ // newline
		}
		remaining := len(lines) - i - 1
		reserve := 0
		if remaining > 0 {
			reserve = utf8.RuneCountInString(moreLine(remaining)) + 1
		}
		if used+n+reserve > maxChars {
			tail := moreLine(len(lines) - i)
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(tail)
			return b.String()
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
		used += n
	}
	return b.String()
}

func moreLine(n int) string {
	return fmt.Sprintf("…and %d more", n)
}

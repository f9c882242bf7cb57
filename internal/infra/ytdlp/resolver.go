// Package ytdlp resolves search terms and media URLs into playable tracks
// through the yt-dlp binary.
package ytdlp

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/jukebot/internal/domain/track"
)

var (
	// ErrNoResults is returned when yt-dlp printed nothing usable.
	ErrNoResults = errors.New("no results")
	// ErrDRM is returned when the media is DRM protected.
	ErrDRM = errors.New("media is DRM protected")
)

// Config represents resolver settings.
type Config struct {
	Format       string
	SearchPrefix string
	Timeout      time.Duration
}

// runFunc executes yt-dlp for target and returns its stdout and stderr.
type runFunc func(ctx context.Context, format, target string) (stdout, stderr string, err error)

// Resolver resolves terms with yt-dlp. Playlists and searches yield their
// first entry only.
type Resolver struct {
	cfg Config
	run runFunc
}

// New creates a new yt-dlp resolver.
func New(cfg Config) *Resolver {
	return &Resolver{cfg: cfg, run: runYTDLP}
}

// Resolve resolves term into a track. A term that is not an http(s) URL is
// searched with the configured search prefix.
func (r *Resolver) Resolve(ctx context.Context, term string) (track.Track, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return track.Track{}, errors.New("empty term")
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	target := r.target(term)
	start := time.Now()
	zlog.Debug().Msgf("resolving with yt-dlp: target=%s", target)

	stdout, stderr, err := r.run(ctx, r.cfg.Format, target)
	if err != nil {
		if strings.Contains(strings.ToLower(stderr), "drm") {
			return track.Track{}, errors.Wrapf(ErrDRM, "target=%s", target)
		}
		return track.Track{}, errors.Wrapf(err, "yt-dlp failed: target=%s stderr=%s", target, lastLine(stderr))
	}

	t, err := parseOutput(stdout)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "target=%s", target)
	}

	zlog.Info().Msgf("resolved track: title=%s url=%s codec=%s duration=%s elapsed=%s",
		t.Title, t.PageURL, t.Codec, t.Duration, time.Since(start).Round(time.Millisecond))
	return t, nil
}

func (r *Resolver) target(term string) string {
	if isURL(term) {
		return term
	}
	return r.cfg.SearchPrefix + term
}

func runYTDLP(ctx context.Context, format, target string) (string, string, error) {
	res, err := ytdlp.New().
		Format(format).
		DumpJSON().
		NoPlaylist().
		PlaylistItems("1").
		IgnoreConfig().
		NoWarnings().
		Run(ctx, target)
	if res == nil {
		return "", "", err
	}
	return res.Stdout, res.Stderr, err
}

// parseOutput builds a track from the first info JSON line yt-dlp printed
// that carries a stream URL.
func parseOutput(stdout string) (track.Track, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		raw := json.RawMessage(line)
		info, err := ytdlp.ParseExtractedInfo(&raw)
		if err != nil {
			zlog.Debug().Msgf("skipping unparsable yt-dlp line: error=%v", err)
			continue
		}
		if info.Type == ytdlp.ExtractedTypePlaylist {
			continue
		}
		streamURL, codec := stream(info)
		if streamURL == "" {
			continue
		}
		t := track.Track{
			Title:     deref(info.Title),
			PageURL:   deref(info.WebpageURL),
			StreamURL: streamURL,
			Codec:     codec,
			Uploader:  deref(info.Uploader),
		}
		if info.Duration != nil && *info.Duration > 0 {
			t.Duration = time.Duration(*info.Duration * float64(time.Second))
		}
		return t, nil
	}
	return track.Track{}, ErrNoResults
}

// stream picks the selected audio URL and its codec. Merged format
// selections report their parts in requested_formats instead of url.
func stream(info *ytdlp.ExtractedInfo) (string, string) {
	if u := deref(info.URL); u != "" {
		var codec string
		if info.ExtractedFormat != nil {
			codec = deref(info.ACodec)
		}
		return u, codec
	}
	for _, f := range info.RequestedFormats {
		if f == nil || f.URL == "" {
			continue
		}
		if codec := deref(f.ACodec); codec != "" {
			return f.URL, codec
		}
	}
	return "", ""
}

// deref also maps yt-dlp's "none" placeholder to an empty string.
func deref(s *string) string {
	if s == nil || *s == "none" {
		return ""
	}
	return strings.TrimSpace(*s)
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}

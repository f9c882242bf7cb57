package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/jukebot/internal/domain/track"
)

// DuplicateTrackFilter checks for duplicate tracks in the queue.
// Detects:
// - Same page URL
// - Re-uploads and remasters (normalized title + same uploader)
// Excludes:
// - Covers (same title but different uploader)
type DuplicateTrackFilter struct{}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already queued, including remastered or official-video variants from the same uploader"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// AppliesTo returns the stage this filter runs at.
func (f *DuplicateTrackFilter) AppliesTo(stage Stage) bool {
	return stage == StageTrack
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(config map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request, requested *track.Track) Result {
	if requested == nil {
		return Accept()
	}

	for _, queued := range req.Queued {
		if queued.PageURL != "" && queued.PageURL == requested.PageURL {
			return Reject("duplicate_track")
		}
		if isVariant(queued, *requested) {
			return Reject("duplicate_track")
		}
	}

	return Accept()
}

// isVariant reports whether two tracks are versions of the same upload.
func isVariant(a, b track.Track) bool {
	if normalizeTitle(a.Title) != normalizeTitle(b.Title) {
		return false
	}
	return isSameUploader(a, b)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),
	}

	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*[\(\[]official\s+(music\s+)?(video|audio|mv)[\)\]]`), // "(Official Music Video)"
		regexp.MustCompile(`\s*[\(\[](lyrics?|lyric\s+video|audio|hd|hq|4k)[\)\]]`), // "[Lyrics]"
		regexp.MustCompile(`\s*\(.*?version\)`),                                     // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),                                        // "(Radio Edit)"
		regexp.MustCompile(`\s*\(live\)`),
		regexp.MustCompile(`\s*-\s*live\b`),
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),
		regexp.MustCompile(`\s*-?\s*single\s+version`),
	}

	spaceRun = regexp.MustCompile(`\s+`)
)

// normalizeTitle removes remaster and upload-variant decorations.
func normalizeTitle(title string) string {
	normalized := strings.ToLower(title)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaceRun.ReplaceAllString(normalized, " ")
	return strings.TrimRight(normalized, " -")
}

// isSameUploader compares uploaders case-insensitively, ignoring the
// " - Topic" suffix of auto-generated music channels.
func isSameUploader(a, b track.Track) bool {
	ua := strings.TrimSuffix(strings.TrimSpace(a.Uploader), " - Topic")
	ub := strings.TrimSuffix(strings.TrimSpace(b.Uploader), " - Topic")
	if ua == "" || ub == "" {
		return false
	}
	return strings.EqualFold(ua, ub)
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return &DuplicateTrackFilter{}
	})
}

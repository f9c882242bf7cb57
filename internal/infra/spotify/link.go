package spotify

import (
	"net/url"
	"strings"
)

// LinkKind is the kind of Spotify object a link points to.
type LinkKind int

const (
	LinkNone LinkKind = iota
	LinkTrack
	LinkAlbum
	LinkPlaylist
)

// String returns the string representation of the link kind.
func (k LinkKind) String() string {
	switch k {
	case LinkTrack:
		return "track"
	case LinkAlbum:
		return "album"
	case LinkPlaylist:
		return "playlist"
	default:
		return "none"
	}
}

// Link is a parsed Spotify URL or URI.
type Link struct {
	Kind LinkKind
	ID   string
}

// ParseLink parses Spotify track, album and playlist links in both URI
// (spotify:track:ID) and URL (https://open.spotify.com/intl-xx/track/ID)
// forms. It reports false for anything else.
func ParseLink(input string) (Link, bool) {
	input = strings.TrimSpace(input)

	if rest, ok := strings.CutPrefix(input, "spotify:"); ok {
		kind, id, found := strings.Cut(rest, ":")
		if !found {
			return Link{}, false
		}
		return newLink(kind, id)
	}

	u, err := url.Parse(input)
	if err != nil || u.Host != "open.spotify.com" {
		return Link{}, false
	}

	// Path is /[intl-xx/]kind/ID
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 && strings.HasPrefix(segments[0], "intl-") {
		segments = segments[1:]
	}
	if len(segments) != 2 {
		return Link{}, false
	}
	return newLink(segments[0], segments[1])
}

func newLink(kind, id string) (Link, bool) {
	if id == "" {
		return Link{}, false
	}
	switch kind {
	case "track":
		return Link{Kind: LinkTrack, ID: id}, true
	case "album":
		return Link{Kind: LinkAlbum, ID: id}, true
	case "playlist":
		return Link{Kind: LinkPlaylist, ID: id}, true
	default:
		return Link{}, false
	}
}

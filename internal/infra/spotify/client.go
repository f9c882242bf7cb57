// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNoTracks is returned when an album or playlist has no playable track.
var ErrNoTracks = errors.New("no tracks found")

// Client is a Spotify API client used to turn Spotify links into search terms.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// New creates a new Spotify client using the client credentials flow.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}

	// Fail fast on bad credentials
	if _, err := auth.Token(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to obtain spotify token")
	}

	// The client fetches a new token whenever the current one expires
	client := spotify.New(auth.Client(context.Background()))

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// SearchTerm returns an "Artist - Title" search term for the first track the
// link refers to. Albums and playlists contribute their first track only.
func (c *Client) SearchTerm(ctx context.Context, link Link) (string, error) {
	switch link.Kind {
	case LinkTrack:
		var result *spotify.FullTrack
		err := c.retry(ctx, func() error {
			t, err := c.client.GetTrack(ctx, spotify.ID(link.ID), spotify.Market(c.market))
			if err != nil {
				return err
			}
			result = t
			return nil
		})
		if err != nil {
			return "", errors.Wrap(err, "failed to get track")
		}
		return searchTerm(result.SimpleTrack), nil

	case LinkAlbum:
		var page *spotify.SimpleTrackPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(link.ID), spotify.Limit(1), spotify.Market(c.market))
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return "", errors.Wrap(err, "failed to get album tracks")
		}
		if len(page.Tracks) == 0 {
			return "", errors.Wrapf(ErrNoTracks, "album %s", link.ID)
		}
		return searchTerm(page.Tracks[0]), nil

	case LinkPlaylist:
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(link.ID),
				spotify.Limit(10),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return "", errors.Wrap(err, "failed to get playlist items")
		}
		for _, item := range page.Items {
			// Only tracks count (episodes have no Track)
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				return searchTerm(item.Track.Track.SimpleTrack), nil
			}
		}
		return "", errors.Wrapf(ErrNoTracks, "playlist %s", link.ID)

	default:
		return "", errors.Newf("unsupported spotify link: %q", link.ID)
	}
}

// searchTerm renders a track as "Artist, Artist - Title".
func searchTerm(t spotify.SimpleTrack) string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	if len(names) == 0 {
		return t.Name
	}
	return strings.Join(names, ", ") + " - " + t.Name
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry aborted")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

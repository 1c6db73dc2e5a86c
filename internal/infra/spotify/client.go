// Package spotify provides a client for the Spotify API.
// Spotify is a metadata-only catalog: its tracks are matched against the
// primary catalog before they can be streamed.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/voicequeue/internal/domain/track"
)

const (
	defaultMarket  = "JP"
	maxSearchLimit = 50
	pageSize       = 100
)

var ErrInvalidReference = errors.New("invalid spotify reference")

// Client is a Spotify API client.
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

// Playlist is a Spotify playlist with its playable tracks.
type Playlist struct {
	Title  string
	URL    string
	Tracks []track.Track
}

// Kind classifies a Spotify reference.
type Kind int

const (
	KindUnknown Kind = iota
	KindTrack
	KindPlaylist
)

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

	// The HTTP client fetches and renews the app token on demand
	return newClient(auth.Client(ctx), cfg.Market), nil
}

func newClient(httpClient *http.Client, market string, opts ...spotify.ClientOption) *Client {
	if market == "" {
		market = defaultMarket
	}
	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// GetTrack retrieves a track by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, ref string) (*track.Track, error) {
	id := extractTrackID(ref)
	if id == "" {
		return nil, errors.Wrapf(ErrInvalidReference, "track %q", ref)
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get track: id=%s", id)
	}

	return c.convertTrack(result), nil
}

// Search searches Spotify for tracks. limit is clamped to 1..50.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}
	limit = max(1, min(limit, maxSearchLimit))

	var result *spotify.SearchResult
	err := c.retry(ctx, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to search: query=%s", query)
	}
	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, *c.convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// GetPlaylist retrieves a playlist and all of its tracks.
func (c *Client) GetPlaylist(ctx context.Context, ref string) (*Playlist, error) {
	id := extractPlaylistID(ref)
	if id == "" {
		return nil, errors.Wrapf(ErrInvalidReference, "playlist %q", ref)
	}

	var full *spotify.FullPlaylist
	err := c.retry(ctx, func() error {
		p, err := c.client.GetPlaylist(ctx, spotify.ID(id), spotify.Fields("name,external_urls"))
		if err != nil {
			return err
		}
		full = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "playlist does not exist or is not accessible: id=%s", id)
	}

	tracks, err := c.playlistTracks(ctx, id)
	if err != nil {
		return nil, err
	}

	url := full.ExternalURLs["spotify"]
	if url == "" {
		url = playlistURL(id)
	}
	return &Playlist{Title: full.Name, URL: url, Tracks: tracks}, nil
}

// playlistTracks pages through the items of a playlist. Episodes and local
// files are skipped.
func (c *Client) playlistTracks(ctx context.Context, id string) ([]track.Track, error) {
	var tracks []track.Track
	for offset := 0; ; offset += pageSize {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(id),
				spotify.Limit(pageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get playlist items: id=%s offset=%d", id, offset)
		}

		for _, item := range page.Items {
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, *c.convertTrack(item.Track.Track))
			}
		}

		if len(page.Items) < pageSize {
			return tracks, nil
		}
	}
}

// convertTrack converts a Spotify FullTrack to an alternate-catalog Track.
func (c *Client) convertTrack(t *spotify.FullTrack) *track.Track {
	artists := make([]track.Artist, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = track.Artist{Name: a.Name, URL: a.ExternalURLs["spotify"]}
	}

	url := t.ExternalURLs["spotify"]
	if url == "" {
		url = trackURL(string(t.ID))
	}

	return &track.Track{
		ID:       string(t.ID),
		Title:    t.Name,
		URL:      url,
		Duration: time.Duration(t.Duration) * time.Millisecond,
		Artists:  artists,
		Source:   track.SourceAlternate,
	}
}

func playlistURL(id string) string {
	return fmt.Sprintf("https://open.spotify.com/playlist/%s", id)
}

func trackURL(id string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", id)
}

// retry retries fn with linear backoff while the error is retryable.
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
				return errors.CombineErrors(ctx.Err(), lastErr)
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable reports rate limiting and server errors.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// Classify reports whether input references a Spotify track or playlist.
func Classify(input string) Kind {
	input = strings.TrimSpace(input)
	switch {
	case strings.HasPrefix(input, "spotify:track:"):
		return KindTrack
	case strings.HasPrefix(input, "spotify:playlist:"):
		return KindPlaylist
	case !strings.Contains(input, "open.spotify.com"):
		return KindUnknown
	case strings.Contains(input, "/track/"):
		return KindTrack
	case strings.Contains(input, "/playlist/"):
		return KindPlaylist
	default:
		return KindUnknown
	}
}

func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles spotify:<kind>:ID URIs and
// https://open.spotify.com[/intl-XX]/<kind>/ID URLs; anything else is
// assumed to be the ID itself.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if id, ok := strings.CutPrefix(input, "spotify:"+kind+":"); ok {
		return id
	}

	segment := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, segment) {
		parts := strings.Split(input, segment)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}

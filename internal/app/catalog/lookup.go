// Package catalog turns an enqueue query into tracks: a primary library id,
// a library playlist, or a Spotify track or playlist reference.
package catalog

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/domain/track"
	"github.com/osa030/voicequeue/internal/infra/library"
	"github.com/osa030/voicequeue/internal/infra/spotify"
)

// PlaylistPrefix marks a query as a library playlist id.
const PlaylistPrefix = "playlist:"

var (
	ErrEmptyQuery         = errors.New("query is empty")
	ErrAlternateDisabled  = errors.New("spotify is not configured")
	ErrLibraryUnavailable = errors.New("no library is loaded")
)

// Library is the primary catalog.
type Library interface {
	Get(id string) (track.Track, error)
	Playlist(id string) (library.Playlist, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// Alternate is the metadata-only catalog.
type Alternate interface {
	GetTrack(ctx context.Context, ref string) (*track.Track, error)
	GetPlaylist(ctx context.Context, ref string) (*spotify.Playlist, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// Playlist is a playlist found by a lookup.
type Playlist struct {
	Title  string
	URL    string
	Tracks []track.Track
}

// Item is the result of a lookup: exactly one of Track and Playlist is set.
type Item struct {
	Track    *track.Track
	Playlist *Playlist
}

// Lookup finds tracks across catalogs.
type Lookup struct {
	library   Library
	alternate Alternate
}

// New creates a lookup. Either catalog may be nil.
func New(lib Library, alt Alternate) *Lookup {
	return &Lookup{library: lib, alternate: alt}
}

// Find resolves query into a track or a playlist.
func (l *Lookup) Find(ctx context.Context, query string) (Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Item{}, ErrEmptyQuery
	}

	switch spotify.Classify(query) {
	case spotify.KindTrack:
		if l.alternate == nil {
			return Item{}, ErrAlternateDisabled
		}
		t, err := l.alternate.GetTrack(ctx, query)
		if err != nil {
			return Item{}, errors.Wrapf(err, "spotify track lookup failed: %s", query)
		}
		return Item{Track: t}, nil
	case spotify.KindPlaylist:
		if l.alternate == nil {
			return Item{}, ErrAlternateDisabled
		}
		p, err := l.alternate.GetPlaylist(ctx, query)
		if err != nil {
			return Item{}, errors.Wrapf(err, "spotify playlist lookup failed: %s", query)
		}
		zlog.Debug().Msgf("catalog: spotify playlist found: title=%s tracks=%d", p.Title, len(p.Tracks))
		return Item{Playlist: &Playlist{Title: p.Title, URL: p.URL, Tracks: p.Tracks}}, nil
	}

	if l.library == nil {
		return Item{}, ErrLibraryUnavailable
	}
	if id, ok := strings.CutPrefix(query, PlaylistPrefix); ok {
		p, err := l.library.Playlist(id)
		if err != nil {
			return Item{}, err
		}
		return Item{Playlist: &Playlist{Title: p.Title, Tracks: p.Tracks}}, nil
	}
	t, err := l.library.Get(query)
	if err != nil {
		return Item{}, err
	}
	return Item{Track: &t}, nil
}

// Search runs a free-text search against the library, or against Spotify
// when alternate is set.
func (l *Lookup) Search(ctx context.Context, query string, limit int, alternate bool) ([]track.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	if alternate {
		if l.alternate == nil {
			return nil, ErrAlternateDisabled
		}
		tracks, err := l.alternate.Search(ctx, query, limit)
		if err != nil {
			return nil, errors.Wrapf(err, "spotify search failed: %s", query)
		}
		return tracks, nil
	}

	if l.library == nil {
		return nil, ErrLibraryUnavailable
	}
	return l.library.Search(ctx, query, limit)
}

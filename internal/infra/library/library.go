// Package library provides the primary catalog: a YAML file of directly
// playable tracks and named playlists built from them.
package library

import (
	"context"
	"os"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/voicequeue/internal/domain/track"
)

var (
	// ErrTrackNotFound is returned when no track has the requested id.
	ErrTrackNotFound = errors.New("track not found in library")
	// ErrPlaylistNotFound is returned when no playlist has the requested id.
	ErrPlaylistNotFound = errors.New("playlist not found in library")
)

// Entry is one track of the catalog file.
type Entry struct {
	ID       string        `yaml:"id" validate:"required"`
	Title    string        `yaml:"title" validate:"required"`
	URL      string        `yaml:"url" validate:"required,url"`
	Duration time.Duration `yaml:"duration" validate:"required_unless=Live true,gte=0"`
	Live     bool          `yaml:"live"`
	Artists  []string      `yaml:"artists"`
}

// PlaylistEntry is one playlist of the catalog file.
type PlaylistEntry struct {
	ID     string   `yaml:"id" validate:"required"`
	Title  string   `yaml:"title" validate:"required"`
	Tracks []string `yaml:"tracks" validate:"min=1"`
}

type file struct {
	Tracks    []Entry         `yaml:"tracks" validate:"dive"`
	Playlists []PlaylistEntry `yaml:"playlists" validate:"dive"`
}

// Playlist is a resolved library playlist.
type Playlist struct {
	ID     string
	Title  string
	Tracks []track.Track
}

// Library is an in-memory, read-only catalog.
type Library struct {
	tracks    []track.Track
	byID      map[string]int
	tokens    [][]string
	playlists map[string]Playlist
}

// Load reads the catalog from path.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read library file: %s", path)
	}
	lib, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid library file: %s", path)
	}
	zlog.Info().Msgf("library: loaded: path=%s tracks=%d playlists=%d", path, lib.Len(), len(lib.playlists))
	return lib, nil
}

// Parse builds a catalog from YAML data.
func Parse(data []byte) (*Library, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse library")
	}
	if err := validator.New().Struct(&f); err != nil {
		return nil, errors.Wrap(err, "library validation failed")
	}

	lib := &Library{
		byID:      make(map[string]int, len(f.Tracks)),
		playlists: make(map[string]Playlist, len(f.Playlists)),
	}
	for _, e := range f.Tracks {
		if _, dup := lib.byID[e.ID]; dup {
			return nil, errors.Newf("duplicate track id: %s", e.ID)
		}
		t := e.toTrack()
		lib.byID[e.ID] = len(lib.tracks)
		lib.tracks = append(lib.tracks, t)
		lib.tokens = append(lib.tokens, tokenize(t.Title+" "+t.ArtistNames()))
	}
	for _, p := range f.Playlists {
		if _, dup := lib.playlists[p.ID]; dup {
			return nil, errors.Newf("duplicate playlist id: %s", p.ID)
		}
		tracks := make([]track.Track, 0, len(p.Tracks))
		for _, id := range p.Tracks {
			i, ok := lib.byID[id]
			if !ok {
				return nil, errors.Newf("playlist %s references unknown track: %s", p.ID, id)
			}
			tracks = append(tracks, lib.tracks[i])
		}
		lib.playlists[p.ID] = Playlist{ID: p.ID, Title: p.Title, Tracks: tracks}
	}
	return lib, nil
}

func (e Entry) toTrack() track.Track {
	artists := make([]track.Artist, len(e.Artists))
	for i, name := range e.Artists {
		artists[i] = track.Artist{Name: name}
	}
	return track.Track{
		ID:       e.ID,
		Title:    e.Title,
		URL:      e.URL,
		Duration: e.Duration,
		Live:     e.Live,
		Artists:  artists,
		Source:   track.SourcePrimary,
	}
}

// Len returns the number of tracks.
func (l *Library) Len() int {
	return len(l.tracks)
}

// Get returns the track with the given id.
func (l *Library) Get(id string) (track.Track, error) {
	i, ok := l.byID[id]
	if !ok {
		return track.Track{}, errors.Wrapf(ErrTrackNotFound, "id=%s", id)
	}
	return l.tracks[i], nil
}

// Playlist returns the playlist with the given id.
func (l *Library) Playlist(id string) (Playlist, error) {
	p, ok := l.playlists[id]
	if !ok {
		return Playlist{}, errors.Wrapf(ErrPlaylistNotFound, "id=%s", id)
	}
	p.Tracks = slices.Clone(p.Tracks)
	return p, nil
}

// Search returns up to limit tracks sharing words with query, ranked by the
// share of query words they contain. Ties keep catalog order.
func (l *Library) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := tokenize(query)
	if len(words) == 0 || limit <= 0 {
		return nil, nil
	}

	type hit struct {
		index int
		score int
	}
	var hits []hit
	for i, tokens := range l.tokens {
		score := 0
		for _, w := range words {
			if slices.Contains(tokens, w) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{index: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	out := make([]track.Track, 0, min(limit, len(hits)))
	for _, h := range hits[:min(limit, len(hits))] {
		out = append(out, l.tracks[h.index])
	}
	return out, nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	slices.Sort(fields)
	return slices.Compact(fields)
}

package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicequeue/internal/domain/track"
)

const catalog = `
tracks:
  - id: yt-imagine
    title: Imagine (Remastered 2010)
    url: https://media.example/imagine
    duration: 3m4s
    artists: [John Lennon]
  - id: yt-jealous
    title: Jealous Guy
    url: https://media.example/jealous
    duration: 4m15s
    artists: [John Lennon]
  - id: yt-radio
    title: Lofi Radio
    url: https://media.example/radio
    live: true
playlists:
  - id: lennon
    title: Lennon Solo
    tracks: [yt-imagine, yt-jealous]
`

func ids(tracks []track.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}

func TestParse(t *testing.T) {
	lib, err := Parse([]byte(catalog))
	require.NoError(t, err)

	assert.Equal(t, 3, lib.Len())

	got, err := lib.Get("yt-imagine")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute+4*time.Second, got.Duration)
	assert.Equal(t, track.SourcePrimary, got.Source)
	assert.Equal(t, "John Lennon", got.MainArtist())

	radio, err := lib.Get("yt-radio")
	require.NoError(t, err)
	assert.True(t, radio.Live)

	_, err = lib.Get("missing")
	assert.True(t, errors.Is(err, ErrTrackNotFound))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "malformed yaml", data: "tracks: [:"},
		{name: "missing url", data: "tracks:\n  - id: a\n    title: A\n    duration: 1m\n"},
		{name: "missing duration", data: "tracks:\n  - id: a\n    title: A\n    url: https://x.example/a\n"},
		{name: "duplicate id", data: "tracks:\n  - {id: a, title: A, url: 'https://x.example/a', duration: 1m}\n  - {id: a, title: B, url: 'https://x.example/b', duration: 1m}\n"},
		{name: "unknown playlist track", data: "tracks: []\nplaylists:\n  - {id: p, title: P, tracks: [nope]}\n"},
		{name: "empty playlist", data: "playlists:\n  - {id: p, title: P, tracks: []}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLibrary_Search(t *testing.T) {
	lib, err := Parse([]byte(catalog))
	require.NoError(t, err)

	tests := []struct {
		name     string
		query    string
		limit    int
		expected []string
	}{
		{name: "title and artist", query: "Imagine John Lennon", limit: 5, expected: []string{"yt-imagine", "yt-jealous"}},
		{name: "limit", query: "john lennon", limit: 1, expected: []string{"yt-imagine"}},
		{name: "case and punctuation", query: "JEALOUS-guy!", limit: 5, expected: []string{"yt-jealous"}},
		{name: "no overlap", query: "beethoven", limit: 5, expected: []string{}},
		{name: "empty query", query: "  ", limit: 5, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lib.Search(context.Background(), tt.query, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(got))
		})
	}
}

func TestLibrary_SearchCancelled(t *testing.T) {
	lib, err := Parse([]byte(catalog))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = lib.Search(ctx, "imagine", 1)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLibrary_Playlist(t *testing.T) {
	lib, err := Parse([]byte(catalog))
	require.NoError(t, err)

	p, err := lib.Playlist("lennon")
	require.NoError(t, err)
	assert.Equal(t, "Lennon Solo", p.Title)
	assert.Equal(t, []string{"yt-imagine", "yt-jealous"}, ids(p.Tracks))

	p.Tracks[0] = track.Track{ID: "mutated"}
	again, err := lib.Playlist("lennon")
	require.NoError(t, err)
	assert.Equal(t, "yt-imagine", again.Tracks[0].ID)

	_, err = lib.Playlist("missing")
	assert.True(t, errors.Is(err, ErrPlaylistNotFound))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o600))

	lib, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, lib.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

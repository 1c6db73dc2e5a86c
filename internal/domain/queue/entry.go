// Package queue provides the per-session queue store: an ordered list of
// bare tracks and playlists consumed through a progress cursor.
package queue

import (
	"github.com/osa030/voicequeue/internal/domain/playlist"
	"github.com/osa030/voicequeue/internal/domain/track"
)

// Entry is one element of the queue: either a *TrackEntry or a *PlaylistEntry.
// The set of implementations is closed; type switches over Entry handle both.
type Entry interface {
	// Remaining returns how many tracks the entry still contributes.
	Remaining() int
	entry()
}

// TrackEntry is a single queued track.
type TrackEntry struct {
	Track track.Track
}

// PlaylistEntry is a whole playlist queued as one entry.
type PlaylistEntry struct {
	Playlist *playlist.Playlist
}

// NewTrack wraps t as a queue entry.
func NewTrack(t track.Track) *TrackEntry {
	return &TrackEntry{Track: t}
}

// NewPlaylist wraps p as a queue entry.
func NewPlaylist(p *playlist.Playlist) *PlaylistEntry {
	return &PlaylistEntry{Playlist: p}
}

func (e *TrackEntry) Remaining() int { return 1 }

func (e *PlaylistEntry) Remaining() int { return e.Playlist.RemainingCount() }

func (*TrackEntry) entry()    {}
func (*PlaylistEntry) entry() {}

// Tracks expands an entry into its remaining tracks.
func Tracks(e Entry) []track.Track {
	switch e := e.(type) {
	case *TrackEntry:
		return []track.Track{e.Track}
	case *PlaylistEntry:
		return e.Playlist.RemainingTracks()
	default:
		panic("queue: unknown entry type")
	}
}

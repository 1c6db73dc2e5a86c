// Package session provides the session manager: one playback controller
// per voice session, created on demand and driven by user commands.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/domain/track"
)

// Transport is the set of external collaborators of one session.
type Transport struct {
	Player     playback.Player
	Connection playback.Connection
	Room       playback.Room
	Messenger  playback.Messenger
}

// Gateway opens the transport of a session and releases it when the
// session is destroyed.
type Gateway interface {
	Open(ctx context.Context, sessionID string) (Transport, error)
	Release(sessionID string)
}

// Stats counts playback events of a session.
type Stats struct {
	Played   int
	Skipped  int
	Failed   int // Tracks that could not be matched or resolved
	Faults   int // Player errors mid-track
	Timeouts int // Disconnects by the idle timer
}

// Session is one voice session.
type Session struct {
	ID        string
	CreatedAt time.Time

	controller *playback.Controller
	transport  Transport

	mu    sync.Mutex
	stats Stats

	done chan struct{}
}

func (s *Session) record(e playback.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Type {
	case playback.EventTrackStarted:
		s.stats.Played++
	case playback.EventTrackSkipped:
		s.stats.Skipped++
	case playback.EventMatchFailed, playback.EventResolveFailed:
		s.stats.Failed++
	case playback.EventPlayerFault:
		s.stats.Faults++
	case playback.EventDisconnected:
		s.stats.Timeouts++
	}
}

// Stats returns a snapshot of the session's counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// close shuts the controller down and waits for the event loop to drain.
func (s *Session) close() error {
	err := s.controller.Close()
	<-s.done
	if c, ok := s.transport.Messenger.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// PlaylistView describes a queued playlist.
type PlaylistView struct {
	Position int // 1-based among the queued playlists
	Title    string
	URL      string
	Loop     bool
	Shuffled bool
	Tracks   []track.Track // Remaining tracks in play order
	Total    int           // Tracks in the playlist
}

// EntryView is one queued entry: a bare track or a playlist.
type EntryView struct {
	Track    *track.Track
	Playlist *PlaylistView
}

// QueueView is a read-only snapshot of a session's queue.
type QueueView struct {
	NowPlaying *track.Track
	Entries    []EntryView
	Upcoming   []track.Track // First tracks to play, playlists expanded
	Remaining  int
	Duration   time.Duration // Total of Remaining, live tracks excluded
	LoopMode   string
	Shuffle    bool
}

// Status describes a session.
type Status struct {
	SessionID       string
	State           playback.State
	NowPlaying      *track.Track
	Next            *track.Track
	LoopMode        string
	Shuffle         bool
	Remaining       int
	Listeners       int
	DisconnectArmed bool
	History         int
	Stats           Stats
	CreatedAt       time.Time
}

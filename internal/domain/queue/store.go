package queue

import (
	"math/rand/v2"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicequeue/internal/domain/track"
)

// Store holds the queue of one playback session.
//
// Entries before progress are fully consumed, except right after a queue loop
// wrap, when every playlist has been re-initialized to a full pass.
// Store is not safe for concurrent use; the owning session serializes access.
type Store struct {
	entries  []Entry
	progress int

	history []track.Track
	current *track.Track
	// currentFrom is the entry the current track was consumed from.
	currentFrom Entry

	skipped  bool
	loopMode LoopMode
	shuffle  bool
	looped   bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the last track returned by Advance.
func (s *Store) Current() (track.Track, bool) {
	if s.current == nil {
		return track.Track{}, false
	}
	return *s.current, true
}

// View returns the entries from the progress cursor onward.
// Playlists are not expanded; use Tracks or Flatten for that.
func (s *Store) View() []Entry {
	return slices.Clone(s.entries[s.progress:])
}

// Enqueue appends entries to the end of the queue.
func (s *Store) Enqueue(entries ...Entry) {
	s.entries = append(s.entries, entries...)
}

// EnqueueFront inserts entries at the progress cursor so they play next.
func (s *Store) EnqueueFront(entries ...Entry) {
	s.entries = slices.Insert(s.entries, s.progress, entries...)
}

// Advance consumes up to n tracks and returns them in play order.
//
// With LoopTrack, isSkip false and a current track, nothing is consumed
// and the current track repeats. A skip always advances and sets the
// skipped flag. Running past the end of the queue stops early; when nothing
// could be consumed the current track is cleared.
// Under LoopQueue the cursor wraps to the first entry and every playlist
// starts a fresh pass.
func (s *Store) Advance(n int, isSkip bool) ([]track.Track, error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "amount %d", n)
	}
	if s.loopMode == LoopTrack && !isSkip && s.current != nil {
		return nil, nil
	}
	if isSkip {
		s.skipped = true
	}

	var (
		consumed []track.Track
		from     Entry
	)
	for n > 0 && s.progress < len(s.entries) {
		switch e := s.entries[s.progress].(type) {
		case *TrackEntry:
			consumed = append(consumed, e.Track)
			from = e
			n--
			s.progress++
		case *PlaylistEntry:
			if e.Playlist.RemainingCount() == 0 {
				s.progress++
				break
			}
			got, err := e.Playlist.Advance(n)
			if err != nil {
				panic(errors.Wrapf(err, "advance playlist %q at entry %d", e.Playlist.Title, s.progress))
			}
			consumed = append(consumed, got...)
			from = e
			n -= len(got)
			if e.Playlist.RemainingCount() == 0 {
				s.progress++
			}
		default:
			panic(errors.Newf("queue: unknown entry type %T", e))
		}
		s.wrap()
	}

	if len(consumed) == 0 {
		s.current = nil
		s.currentFrom = nil
		return nil, nil
	}
	last := consumed[len(consumed)-1]
	s.current = &last
	s.currentFrom = from
	return consumed, nil
}

// wrap rewinds the cursor when looping the queue and the end is reached.
func (s *Store) wrap() {
	if s.loopMode != LoopQueue || len(s.entries) == 0 || s.progress < len(s.entries) {
		return
	}
	for _, e := range s.entries {
		if p, ok := e.(*PlaylistEntry); ok {
			p.Playlist.Reinitialize()
		}
	}
	s.progress = 0
	if s.RemainingCount() == 0 {
		// Nothing playable to loop over.
		s.progress = len(s.entries)
		return
	}
	s.looped = true
}

// SetLoopMode sets the queue-level loop mode. Switching to LoopQueue while
// the cursor is at the end rewinds it immediately.
func (s *Store) SetLoopMode(mode LoopMode) {
	s.loopMode = mode
	s.wrap()
}

// LoopMode returns the queue-level loop mode.
func (s *Store) LoopMode() LoopMode {
	return s.loopMode
}

// MarkSkipped flags the current track as manually skipped.
func (s *Store) MarkSkipped() {
	s.skipped = true
}

// Skipped reports whether the current track was manually skipped.
func (s *Store) Skipped() bool {
	return s.skipped
}

// ConsumeSkipped clears the skipped flag and returns its previous value.
func (s *Store) ConsumeSkipped() bool {
	was := s.skipped
	s.skipped = false
	return was
}

// Looped reports whether the queue has wrapped at least once.
func (s *Store) Looped() bool {
	return s.looped
}

// RemainingCount sums the remaining tracks: one per bare track, the
// remaining count of each playlist.
func (s *Store) RemainingCount() int {
	total := 0
	for _, e := range s.entries[s.progress:] {
		total += e.Remaining()
	}
	return total
}

// IsExhausted reports whether the cursor is past the last entry.
func (s *Store) IsExhausted() bool {
	return s.progress >= len(s.entries)
}

// AppendCurrent re-appends the current track as a bare entry when the entry
// it came from is no longer part of the queue, so a queue loop replays it.
func (s *Store) AppendCurrent() bool {
	if s.current == nil {
		return false
	}
	if s.currentFrom != nil && slices.Contains(s.entries, s.currentFrom) {
		return false
	}
	e := NewTrack(*s.current)
	s.entries = append(s.entries, e)
	s.currentFrom = e
	return true
}

// AttachMatch stores the cross-catalog match resolved for the current
// track, so a repeat or a queue loop does not match it again. m must be
// the current track carrying its match. It reports whether it applied.
func (s *Store) AttachMatch(m track.Track) bool {
	if s.current == nil || m.Match == nil || m.ID != s.current.ID {
		return false
	}
	s.current = &m
	if e, ok := s.currentFrom.(*TrackEntry); ok && e.Track.ID == m.ID {
		e.Track = m
	}
	return true
}

// PromoteRandom moves a uniformly chosen remaining entry to the cursor.
// It reports whether the order changed.
func (s *Store) PromoteRandom(rng *rand.Rand) bool {
	remaining := len(s.entries) - s.progress
	if remaining < 2 {
		return false
	}
	i := s.progress + rng.IntN(remaining)
	if i == s.progress {
		return false
	}
	e := s.entries[i]
	s.entries = slices.Delete(s.entries, i, i+1)
	s.entries = slices.Insert(s.entries, s.progress, e)
	return true
}

// SetShuffle sets the queue-level random pick flag.
func (s *Store) SetShuffle(on bool) {
	s.shuffle = on
}

// Shuffle reports whether the next entry is picked at random.
func (s *Store) Shuffle() bool {
	return s.shuffle
}

// RecordPlayed appends t to the play history.
func (s *Store) RecordPlayed(t track.Track) {
	s.history = append(s.history, t)
}

// History returns the played tracks, most recent last.
func (s *Store) History() []track.Track {
	return slices.Clone(s.history)
}

// PlaylistCount returns the number of playlist entries still in the queue.
func (s *Store) PlaylistCount() int {
	count := 0
	for _, e := range s.entries[s.progress:] {
		if _, ok := e.(*PlaylistEntry); ok {
			count++
		}
	}
	return count
}

// Playlist returns the n-th (1-based) playlist entry among the remaining entries.
func (s *Store) Playlist(n int) (*PlaylistEntry, error) {
	count := s.PlaylistCount()
	if count == 0 {
		return nil, ErrNoPlaylists
	}
	if n < 1 || n > count {
		return nil, NewRangeError(ErrInvalidPlaylistIndex, n, 1, count)
	}
	seen := 0
	for _, e := range s.entries[s.progress:] {
		if p, ok := e.(*PlaylistEntry); ok {
			seen++
			if seen == n {
				return p, nil
			}
		}
	}
	panic("queue: playlist count mismatch")
}

// Flatten returns up to limit upcoming tracks with playlists expanded.
// A limit of zero or less returns every upcoming track.
func (s *Store) Flatten(limit int) []track.Track {
	var out []track.Track
	for _, e := range s.entries[s.progress:] {
		out = append(out, Tracks(e)...)
		if limit > 0 && len(out) >= limit {
			return out[:limit]
		}
	}
	return out
}

// Next returns the first upcoming track without consuming it.
func (s *Store) Next() (track.Track, bool) {
	for _, e := range s.entries[s.progress:] {
		if tracks := Tracks(e); len(tracks) > 0 {
			return tracks[0], true
		}
	}
	return track.Track{}, false
}

// Clear drops every entry. History and the current track are kept.
func (s *Store) Clear() {
	s.entries = nil
	s.progress = 0
}

// Len returns the number of entries, consumed ones included.
func (s *Store) Len() int {
	return len(s.entries)
}

// Progress returns the index of the first entry not fully consumed.
func (s *Store) Progress() int {
	return s.progress
}

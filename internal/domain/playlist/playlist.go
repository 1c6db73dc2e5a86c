// Package playlist provides the Playlist domain entity and its traversal state.
package playlist

import (
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicequeue/internal/domain/track"
)

var (
	// ErrInvalidAmount is returned when advancing by zero or a negative amount.
	ErrInvalidAmount = errors.New("advance amount must be positive")
	// ErrExhausted is returned when advancing a playlist with nothing remaining.
	ErrExhausted = errors.New("playlist has no remaining tracks")
)

// Playlist is an immutable track list with mutable traversal state.
//
// order holds the indices not yet played in the current pass. loopOrder holds
// the full pass used when the playlist loops; order is always a prefix of
// loopOrder, and loopOrder is rotated as tracks are consumed so the same
// permutation is replayed on every lap until the playlist is reshuffled.
type Playlist struct {
	Title  string        // Playlist title
	URL    string        // Playlist URL
	Tracks []track.Track // Track list (never mutated)

	order        []int
	loopOrder    []int
	currentIndex int // -1 before the first track is delivered

	shuffled bool
	seed     string
	loop     bool
}

// New creates a playlist positioned before its first track.
func New(title, url string, tracks []track.Track, shuffled, loop bool) *Playlist {
	p := &Playlist{
		Title:        title,
		URL:          url,
		Tracks:       tracks,
		currentIndex: -1,
		loop:         loop,
	}
	p.Initialize()
	if shuffled {
		p.Shuffle()
	}
	return p
}

// Initialize rebuilds both orders as the natural lap starting right after
// the current index. Shuffle state and seed are left untouched.
func (p *Playlist) Initialize() {
	n := len(p.Tracks)
	start := p.currentIndex + 1
	p.order = make([]int, 0, n)
	p.loopOrder = make([]int, 0, n)
	for k := 0; k < n; k++ {
		i := (start + k) % n
		if start+k < n {
			p.order = append(p.order, i)
		}
		p.loopOrder = append(p.loopOrder, i)
	}
}

// Reinitialize starts a fresh pass from the first track. A shuffled playlist
// keeps its seed, so the new pass replays the same permutation.
func (p *Playlist) Reinitialize() {
	p.currentIndex = -1
	p.Initialize()
	if p.shuffled {
		p.Shuffle()
	}
}

// Shuffle applies a seeded permutation to all indices. A seed is generated if
// none is set. When a track is current, the permutation is rotated so that
// track comes first and is then dropped from the live order; it is kept at the
// end of the loop order so a looping pass still contains every track.
func (p *Playlist) Shuffle() {
	if p.seed == "" {
		p.seed = newSeed("")
	}
	p.shuffled = true

	full := p.distinctIndices()
	shuffleIndices(full, p.seed)

	if p.currentIndex >= 0 {
		if at := slices.Index(full, p.currentIndex); at >= 0 {
			full = append(full[at:], full[:at]...)
			current := full[0]
			full = full[1:]
			p.order = slices.Clone(full)
			p.loopOrder = append(slices.Clone(full), current)
			return
		}
	}

	p.order = slices.Clone(full)
	p.loopOrder = slices.Clone(full)
}

// Reshuffle generates a new seed, different from the current one, and shuffles.
func (p *Playlist) Reshuffle() {
	p.seed = newSeed(p.seed)
	p.Shuffle()
}

// Unshuffle discards the seed and restores the natural order after the current track.
func (p *Playlist) Unshuffle() {
	p.shuffled = false
	p.seed = ""
	p.Initialize()
}

// Advance consumes up to n tracks and returns them in play order.
// Fewer than n tracks are returned when a non-looping pass runs out.
func (p *Playlist) Advance(n int) ([]track.Track, error) {
	if n <= 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "amount %d", n)
	}
	if p.RemainingCount() == 0 {
		return nil, ErrExhausted
	}

	k := min(n, p.RemainingCount())
	consumed := slices.Clone(p.loopOrder[:k])
	if !p.loop {
		consumed = slices.Clone(p.order[:k])
	}

	p.loopOrder = append(p.loopOrder[k:], consumed...)
	p.order = p.order[min(k, len(p.order)):]
	if len(p.order) == 0 && p.loop {
		p.order = slices.Clone(p.loopOrder)
	}

	p.currentIndex = consumed[len(consumed)-1]

	tracks := make([]track.Track, len(consumed))
	for i, idx := range consumed {
		tracks[i] = p.Tracks[idx]
	}
	return tracks, nil
}

// RemainingCount returns the number of tracks left in the order in effect.
func (p *Playlist) RemainingCount() int {
	return len(p.activeOrder())
}

// RemainingTracks returns the tracks left in the order in effect.
func (p *Playlist) RemainingTracks() []track.Track {
	active := p.activeOrder()
	tracks := make([]track.Track, len(active))
	for i, idx := range active {
		tracks[i] = p.Tracks[idx]
	}
	return tracks
}

// SetLoop sets whether the playlist repeats independently of the queue.
func (p *Playlist) SetLoop(loop bool) {
	p.loop = loop
	if loop && len(p.order) == 0 {
		p.order = slices.Clone(p.loopOrder)
	}
}

// Loops reports whether the playlist repeats independently of the queue.
func (p *Playlist) Loops() bool {
	return p.loop
}

// Shuffled reports whether the playlist is shuffled.
func (p *Playlist) Shuffled() bool {
	return p.shuffled
}

// Seed returns the shuffle seed, or "" when unshuffled.
func (p *Playlist) Seed() string {
	return p.seed
}

// CurrentIndex returns the index of the last delivered track, or -1.
func (p *Playlist) CurrentIndex() int {
	return p.currentIndex
}

// Len returns the number of tracks in the playlist.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}

// TotalDuration returns the summed duration of all non-live tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		if !t.Live {
			total += t.Duration
		}
	}
	return total
}

func (p *Playlist) activeOrder() []int {
	if p.loop {
		return p.loopOrder
	}
	return p.order
}

// distinctIndices returns the sorted union of both orders.
func (p *Playlist) distinctIndices() []int {
	all := make([]int, 0, len(p.loopOrder)+len(p.order))
	all = append(all, p.loopOrder...)
	all = append(all, p.order...)
	slices.Sort(all)
	all = slices.Compact(all)
	return all
}

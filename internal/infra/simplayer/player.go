// Package simplayer provides a simulated audio transport: tracks "play" for
// their duration on a clock, without streaming any audio.
package simplayer

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/app/playback"
)

// ErrNotSubscribed is returned by Play before the player joined a connection.
var ErrNotSubscribed = errors.New("player is not subscribed to a connection")

// Player is a timer-driven playback.Player.
type Player struct {
	mu       sync.Mutex
	clock    playback.Clock
	now      func() time.Time
	listener playback.PlayerListener

	conn      *Connection
	current   *playback.Resource
	startedAt time.Time
	timer     playback.Timer
	// seq invalidates the end timer of a replaced or stopped track.
	seq uint64
}

var _ playback.Player = (*Player)(nil)

// NewPlayer creates a player whose tracks end on clock.
func NewPlayer(clock playback.Clock) *Player {
	return &Player{clock: clock, now: time.Now}
}

// Listen implements playback.Player.
func (p *Player) Listen(l playback.PlayerListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

// Play implements playback.Player. A live resource plays until stopped.
func (p *Player) Play(_ context.Context, res playback.Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || !p.conn.Active() {
		return ErrNotSubscribed
	}
	if res.URL == "" {
		return errors.New("resource has no stream url")
	}

	p.stopTimerLocked()
	p.seq++
	seq := p.seq
	p.current = &res
	p.startedAt = p.now()

	if !res.Live {
		p.timer = p.clock.AfterFunc(res.Track.Playable().Duration, func() {
			p.finish(seq)
		})
	}
	zlog.Debug().Msgf("simplayer: playing: url=%s live=%t", res.URL, res.Live)
	return nil
}

// Stop implements playback.Player. Stopping a playing track emits one idle
// notification from a separate goroutine.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopTimerLocked()
	p.seq++
	p.current = nil
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		go listener.OnIdle()
	}
	return nil
}

// Fail simulates a stream fault: the listener receives the fault, then the
// idle notification for the interrupted track.
func (p *Player) Fail(err error) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	fault := playback.PlayerFault{
		Resource: *p.current,
		Position: p.now().Sub(p.startedAt),
		Err:      err,
	}
	p.stopTimerLocked()
	p.seq++
	p.current = nil
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		go func() {
			listener.OnError(fault)
			listener.OnIdle()
		}()
	}
}

// Current returns the resource being played and its position.
func (p *Player) Current() (playback.Resource, time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return playback.Resource{}, 0, false
	}
	return *p.current, p.now().Sub(p.startedAt), true
}

// finish ends the track started with seq. It runs on the clock's goroutine.
func (p *Player) finish(seq uint64) {
	p.mu.Lock()
	if seq != p.seq || p.current == nil {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.current = nil
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		listener.OnIdle()
	}
}

func (p *Player) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Player) attach(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = c
}

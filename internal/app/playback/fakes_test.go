package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicequeue/internal/domain/track"
)

type fakeResolver struct {
	mu       sync.Mutex
	failures map[string]error
	calls    []string
	// matches maps alternate-catalog track IDs to their match.
	matches    map[string]track.Track
	matchCalls int
	// block, when set, holds Resolve until closed; entered is signalled first.
	block   chan struct{}
	entered chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{failures: make(map[string]error), matches: make(map[string]track.Track)}
}

func (r *fakeResolver) fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[id] = err
}

func (r *fakeResolver) Resolve(_ context.Context, t track.Track) (Resource, error) {
	r.mu.Lock()
	r.calls = append(r.calls, t.ID)
	err := r.failures[t.ID]
	if t.NeedsMatch() {
		r.matchCalls++
		if m, ok := r.matches[t.ID]; ok {
			t = t.WithMatch(m)
		}
	}
	block, entered := r.block, r.entered
	r.mu.Unlock()

	if block != nil {
		entered <- struct{}{}
		<-block
	}
	if err != nil {
		return Resource{}, err
	}
	return Resource{Track: t, URL: "stream://" + t.ID}, nil
}

func (r *fakeResolver) MatchCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchCalls
}

func (r *fakeResolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakePlayer struct {
	mu       sync.Mutex
	listener PlayerListener
	played   []string
	stops    int
	playErr  error
	// idleOnStop makes Stop report idle when a track was playing, like a
	// real player does.
	idleOnStop bool
	playing    bool
	// beforeStop runs once at the start of the next Stop.
	beforeStop func()
}

func (p *fakePlayer) Play(_ context.Context, res Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.played = append(p.played, res.Track.ID)
	p.playing = true
	return nil
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	p.stops++
	before := p.beforeStop
	p.beforeStop = nil
	p.mu.Unlock()

	if before != nil {
		before()
	}

	p.mu.Lock()
	idle := p.idleOnStop && p.playing
	p.playing = false
	l := p.listener
	p.mu.Unlock()
	if idle {
		l.OnIdle()
	}
	return nil
}

// end finishes the playing track on its own.
func (p *fakePlayer) end() {
	p.mu.Lock()
	p.playing = false
	l := p.listener
	p.mu.Unlock()
	l.OnIdle()
}

func (p *fakePlayer) Listen(l PlayerListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = l
}

func (p *fakePlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

func (p *fakePlayer) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type fakeConnection struct {
	mu         sync.Mutex
	subscribed int
	destroyed  int
}

func (c *fakeConnection) Subscribe(Player) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed++
	return nil
}

func (c *fakeConnection) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed++
	return nil
}

type fakeRoom struct {
	mu     sync.Mutex
	humans int
}

func (r *fakeRoom) HumanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.humans
}

func (r *fakeRoom) set(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.humans = n
}

type fakeMessenger struct {
	mu       sync.Mutex
	messages []Message
}

func (m *fakeMessenger) Announce(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *fakeMessenger) Kinds() []MessageKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]MessageKind, len(m.messages))
	for i, msg := range m.messages {
		kinds[i] = msg.Kind
	}
	return kinds
}

func (m *fakeMessenger) Last() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[len(m.messages)-1]
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

// fakeClock records timers; tests fire them explicitly.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// FireAll runs every pending timer callback.
func (c *fakeClock) FireAll() {
	c.mu.Lock()
	var pending []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			pending = append(pending, t)
		}
	}
	c.mu.Unlock()

	for _, t := range pending {
		t.f()
	}
}

func (c *fakeClock) Timers() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

type fakeSubscription struct {
	closed bool
}

func (s *fakeSubscription) Close() error {
	s.closed = true
	return nil
}

var errUnavailable = errors.New("unavailable")

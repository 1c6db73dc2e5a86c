package simplayer

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicequeue/internal/app/playback"
)

// Connection is a simulated voice connection.
type Connection struct {
	mu        sync.Mutex
	active    bool
	destroyed int
}

var _ playback.Connection = (*Connection)(nil)

// attacher is implemented by *Player and by types embedding it.
type attacher interface {
	attach(c *Connection)
}

// Subscribe implements playback.Connection. It (re-)establishes the
// connection.
func (c *Connection) Subscribe(p playback.Player) error {
	sp, ok := p.(attacher)
	if !ok {
		return errors.Newf("unsupported player type %T", p)
	}
	c.mu.Lock()
	c.active = true
	c.mu.Unlock()

	sp.attach(c)
	return nil
}

// Destroy implements playback.Connection.
func (c *Connection) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.destroyed++
	return nil
}

// Active reports whether the connection is established.
func (c *Connection) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Room is a simulated voice room with a settable listener count.
type Room struct {
	mu     sync.Mutex
	humans int
}

var _ playback.Room = (*Room)(nil)

// NewRoom creates a room with the given number of listeners.
func NewRoom(humans int) *Room {
	return &Room{humans: humans}
}

// HumanCount implements playback.Room.
func (r *Room) HumanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.humans
}

// SetHumanCount changes the number of listeners.
func (r *Room) SetHumanCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.humans = max(n, 0)
}

// Gateway creates the simulated transport of each session and keeps its
// room reachable for listener count changes.
type Gateway struct {
	clock         playback.Clock
	initialHumans int

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewGateway creates a gateway whose rooms start with initialHumans listeners.
func NewGateway(clock playback.Clock, initialHumans int) *Gateway {
	return &Gateway{
		clock:         clock,
		initialHumans: initialHumans,
		rooms:         make(map[string]*Room),
	}
}

// Open creates the transport of a new session.
func (g *Gateway) Open(sessionID string) (*Player, *Connection, *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room := NewRoom(g.initialHumans)
	g.rooms[sessionID] = room
	return NewPlayer(g.clock), &Connection{}, room
}

// Room returns the room of a session.
func (g *Gateway) Room(sessionID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[sessionID]
	return r, ok
}

// Release forgets the room of a destroyed session.
func (g *Gateway) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, sessionID)
}

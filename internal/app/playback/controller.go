package playback

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/domain/queue"
	"github.com/osa030/voicequeue/internal/domain/track"
)

// Errors
var (
	ErrNotPlaying    = errors.New("nothing is playing")
	ErrQueueEmpty    = errors.New("queue is empty")
	ErrInvalidSkip   = errors.New("invalid skip amount")
	ErrMatchFailed   = errors.New("cross-catalog match failed")
	ErrResolveFailed = errors.New("track could not be resolved")
	ErrClosed        = errors.New("controller is closed")

	// errSuperseded is returned when a stop or skip invalidated an in-flight start.
	errSuperseded = errors.New("start superseded")
)

// DefaultDisconnectTimeout is how long an empty queue or room is tolerated.
const DefaultDisconnectTimeout = 5 * time.Minute

// Config holds controller configuration.
type Config struct {
	DisconnectTimeout time.Duration // Delay before leaving an empty queue or room
	EventBuffer       int           // Capacity of the event channel
}

// Deps are the collaborators of one session's controller.
type Deps struct {
	SessionID  string
	Store      *queue.Store
	Resolver   Resolver
	Player     Player
	Connection Connection
	Room       Room
	Messenger  Messenger
	Clock      Clock      // Defaults to WallClock
	Rand       *rand.Rand // Queue-level random pick; defaults to a random source
}

// Controller is the playback state machine of one session.
// All mutations of the queue store go through the controller's lock.
type Controller struct {
	mu sync.Mutex

	sessionID string
	store     *queue.Store

	resolver  Resolver
	player    Player
	conn      Connection
	room      Room
	messenger Messenger
	clock     Clock
	rng       *rand.Rand

	config Config

	state      State
	nowPlaying *track.Track // Current track as resolved (with its match)
	subscribed bool
	// gen is bumped whenever an in-flight start must be discarded.
	gen uint64
	// owedIdles counts started tracks whose idle notification has not
	// arrived yet. Only the last one reports the end of the current track.
	owedIdles int
	// skipStops counts skips that are stopping the player. An idle seen
	// meanwhile is deferred to the skip so the queue moves only once.
	skipStops       int
	endedDuringSkip bool
	// unplayable is set when every queued track failed to start.
	unplayable bool

	disconnect    Timer
	disconnectSeq uint64

	subscriptions []io.Closer

	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a controller and registers it as the player's listener.
func NewController(config Config, deps Deps) *Controller {
	if config.DisconnectTimeout <= 0 {
		config.DisconnectTimeout = DefaultDisconnectTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = 32
	}
	if deps.Store == nil {
		deps.Store = queue.NewStore()
	}
	if deps.Clock == nil {
		deps.Clock = WallClock{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		sessionID: deps.SessionID,
		store:     deps.Store,
		resolver:  deps.Resolver,
		player:    deps.Player,
		conn:      deps.Connection,
		room:      deps.Room,
		messenger: deps.Messenger,
		clock:     deps.Clock,
		rng:       deps.Rand,
		config:    config,
		state:     StateIdle,
		eventCh:   make(chan Event, config.EventBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.player.Listen(c)
	return c
}

// Events returns the event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NowPlaying returns the track being played or started.
func (c *Controller) NowPlaying() (track.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowPlayingLocked()
}

// DisconnectArmed reports whether the disconnect timer is running.
func (c *Controller) DisconnectArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnect != nil
}

// View runs fn with the queue store under the controller's lock.
// fn must not mutate the store.
func (c *Controller) View(fn func(s *queue.Store)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.store)
}

// Update runs fn with the queue store under the controller's lock.
func (c *Controller) Update(fn func(s *queue.Store) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return fn(c.store)
}

// AttachSubscription registers a realtime subscription closed on Stop.
func (c *Controller) AttachSubscription(sub io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = append(c.subscriptions, sub)
}

// StartPlayback starts playing the queue. It is a no-op while a track is
// playing or starting. A track that fails to resolve is announced and
// treated as ended, so playback moves on to the next one.
func (c *Controller) StartPlayback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state == StatePlaying || c.state == StateStarting {
		return nil
	}
	if _, ok := c.store.Current(); !ok && c.store.RemainingCount() == 0 {
		return ErrQueueEmpty
	}

	c.cancelDisconnectLocked()
	c.unplayable = false

	if !c.subscribed {
		if err := c.conn.Subscribe(c.player); err != nil {
			return errors.Wrap(err, "failed to subscribe player")
		}
		c.subscribed = true
	}

	if _, ok := c.store.Current(); !ok {
		if _, err := c.store.Advance(1, false); err != nil {
			return errors.Wrap(err, "failed to advance queue")
		}
	}

	zlog.Debug().Msgf("playback: starting: session_id=%s", c.sessionID)
	c.playFromCurrentLocked(ctx)
	return nil
}

// Skip skips the current track and n-1 further tracks. n must lie within
// 1 and the number of remaining tracks; with nothing queued it is forced
// to 1 so the current track can still be stopped. The skipped tracks are
// returned current first.
func (c *Controller) Skip(ctx context.Context, n int) ([]track.Track, error) {
	c.mu.Lock()

	if c.state != StatePlaying && c.state != StateStarting {
		c.mu.Unlock()
		return nil, ErrNotPlaying
	}

	remaining := c.store.RemainingCount()
	if n < 1 || (remaining > 0 && n > remaining) {
		c.mu.Unlock()
		return nil, queue.NewRangeError(ErrInvalidSkip, n, 1, max(remaining, 1))
	}
	if remaining == 0 {
		n = 1
	}

	var skipped []track.Track
	if cur, ok := c.nowPlayingLocked(); ok {
		skipped = append(skipped, cur)
	}
	advanced, err := c.store.Advance(n, true)
	if err != nil {
		c.mu.Unlock()
		return nil, errors.Wrap(err, "failed to advance queue")
	}
	skipped = append(skipped, advanced...)

	zlog.Info().Msgf("playback: skipped: session_id=%s count=%d", c.sessionID, len(skipped))
	for i := range skipped {
		c.sendEventLocked(Event{Type: EventTrackSkipped, Track: &skipped[i]})
	}
	c.announceLocked(ctx, Message{Kind: MessageSkipped, Tracks: skipped})

	if c.state == StateStarting {
		// Nothing is streaming yet: discard the pending start and start over.
		c.gen++
		c.playFromCurrentLocked(c.ctx)
		c.mu.Unlock()
		return skipped, nil
	}
	c.skipStops++
	c.mu.Unlock()

	// The player's idle notification drives the next track.
	if err := c.player.Stop(); err != nil {
		zlog.Warn().Msgf("playback: failed to stop player: session_id=%s err=%v", c.sessionID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipStops--
	if c.skipStops == 0 && c.endedDuringSkip {
		c.endedDuringSkip = false
		if c.state == StatePlaying {
			c.handleTrackEndLocked(c.ctx)
		}
	}
	return skipped, nil
}

// Stop stops playback, closes the realtime subscriptions and destroys the
// connection. The queue is left intact so playback can be resumed.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	subs := c.stopLocked()
	c.sendEventLocked(Event{Type: EventStopped})
	c.mu.Unlock()

	return c.teardown(subs)
}

// Close stops playback and closes the event channel.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	subs := c.stopLocked()
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()

	c.cancel()
	return c.teardown(subs)
}

// OnIdle handles the player's idle notification.
func (c *Controller) OnIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.owedIdles > 0 {
		c.owedIdles--
	}
	switch {
	case c.owedIdles > 0:
		// Late idle of a track stopped before the current one started.
		return
	case c.state != StatePlaying:
		// Idle after a stop, or a stale notification.
		return
	case c.skipStops > 0:
		c.endedDuringSkip = true
		return
	}
	c.handleTrackEndLocked(c.ctx)
}

// OnError handles a player fault. The fault is announced; the idle
// notification that follows moves on to the next track.
func (c *Controller) OnError(fault PlayerFault) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := fault.Resource.Track
	zlog.Error().Msgf("playback: player error: session_id=%s track=%s url=%s position=%s err=%v",
		c.sessionID, t.Title, t.URL, track.FormatDuration(fault.Position), fault.Err)

	c.sendEventLocked(Event{Type: EventPlayerFault, Track: &t, Err: fault.Err})
	c.announceLocked(c.ctx, Message{
		Kind:     MessagePlaybackError,
		Track:    &t,
		Position: fault.Position,
		Err:      fault.Err,
	})
}

// handleTrackEndLocked moves past the track that just ended and starts the
// next one. Must be called with lock held.
func (c *Controller) handleTrackEndLocked(ctx context.Context) {
	if ended, ok := c.nowPlayingLocked(); ok {
		c.sendEventLocked(Event{Type: EventTrackEnded, Track: &ended})
	}
	c.nowPlaying = nil

	mode := c.store.LoopMode()
	if mode == queue.LoopQueue {
		c.store.AppendCurrent()
	}
	if mode != queue.LoopTrack && !c.store.Skipped() {
		c.advanceLocked(false)
	}
	c.playFromCurrentLocked(ctx)
}

// advanceLocked moves to the next track, picking it at random when the
// queue-level shuffle is on. forced advances even under track loop.
func (c *Controller) advanceLocked(forced bool) {
	if c.store.Shuffle() && c.store.LoopMode() != queue.LoopTrack {
		c.store.PromoteRandom(c.rng)
	}
	if _, err := c.store.Advance(1, forced); err != nil {
		// Advance only fails on a non-positive amount.
		panic(errors.Wrap(err, "advance queue"))
	}
}

// playFromCurrentLocked starts the current track, or arms the disconnect
// timer when the queue is empty or the room has no listeners. A track that
// cannot be started counts as ended; failures in a row are bounded by the
// queue length so a queue of unplayable tracks cannot spin forever.
// Must be called with lock held.
func (c *Controller) playFromCurrentLocked(ctx context.Context) {
	maxAttempts := c.store.RemainingCount() + 1
	for attempt := 1; ; attempt++ {
		if !c.checkDisconnectLocked(ctx) {
			return
		}
		if attempt > maxAttempts {
			zlog.Error().Msgf("playback: giving up after %d failed starts: session_id=%s", maxAttempts, c.sessionID)
			c.giveUpLocked(ctx)
			return
		}

		err := c.startCurrentLocked(ctx)
		if err == nil || errors.Is(err, errSuperseded) {
			return
		}
		c.advanceLocked(true)
	}
}

// giveUpLocked parks the session after every queued track failed to start.
// The disconnect timer is armed as for an empty queue; a new request or
// StartPlayback retries. Must be called with lock held.
func (c *Controller) giveUpLocked(ctx context.Context) {
	c.nowPlaying = nil
	c.unplayable = true
	if c.disconnect == nil {
		c.armDisconnectLocked()
	}
	c.setStateLocked(StateAwaitingDisconnect)
	c.sendEventLocked(Event{Type: EventUnplayable})
	c.announceLocked(ctx, Message{Kind: MessageUnplayable, Timeout: c.config.DisconnectTimeout})
}

// checkDisconnectLocked arms the disconnect timer when the queue or the
// room is empty. It reports whether there is a current track to play.
func (c *Controller) checkDisconnectLocked(ctx context.Context) bool {
	_, hasTrack := c.store.Current()
	roomEmpty := c.room.HumanCount() == 0

	if (!hasTrack || roomEmpty) && c.disconnect == nil {
		kind := MessageRoomEmpty
		if !hasTrack {
			kind = MessageQueueEmpty
		}
		c.armDisconnectLocked()
		c.announceLocked(ctx, Message{Kind: kind, Timeout: c.config.DisconnectTimeout})
	}

	if !hasTrack {
		c.nowPlaying = nil
		c.setStateLocked(StateAwaitingDisconnect)
		c.sendEventLocked(Event{Type: EventQueueEmpty})
		return false
	}
	return true
}

// startCurrentLocked resolves and plays the current track. The lock is
// released while resolving; a stop or skip in the meantime supersedes the
// start and errSuperseded is returned.
func (c *Controller) startCurrentLocked(ctx context.Context) error {
	cur, ok := c.store.Current()
	if !ok {
		return ErrQueueEmpty
	}

	c.gen++
	gen := c.gen
	c.nowPlaying = &cur
	c.setStateLocked(StateStarting)

	c.mu.Unlock()
	res, err := c.resolver.Resolve(ctx, cur)
	c.mu.Lock()

	if gen != c.gen || c.closed {
		zlog.Debug().Msgf("playback: discarding stale start: session_id=%s track=%s", c.sessionID, cur.Title)
		return errSuperseded
	}
	if err != nil {
		c.reportStartFailureLocked(ctx, cur, err)
		return err
	}
	if res.Track.ID == "" {
		res.Track = cur
	}

	if err := c.player.Play(c.ctx, res); err != nil {
		err = errors.Wrap(err, "failed to play resource")
		c.reportStartFailureLocked(ctx, cur, err)
		return err
	}

	c.owedIdles++
	c.unplayable = false
	if cur.NeedsMatch() && !res.Track.NeedsMatch() {
		c.store.AttachMatch(res.Track)
	}
	c.nowPlaying = &res.Track
	c.setStateLocked(StatePlaying)

	// A track repeating under track loop is not announced again.
	if c.store.LoopMode() != queue.LoopTrack || c.store.Skipped() {
		c.store.ConsumeSkipped()
		c.store.RecordPlayed(res.Track)
		c.announceLocked(ctx, c.nowPlayingMessageLocked(res.Track))
	}

	zlog.Info().Msgf("playback: track started: session_id=%s track=%s duration=%s",
		c.sessionID, res.Track.Title, res.Track.DurationString())
	c.sendEventLocked(Event{Type: EventTrackStarted, Track: &res.Track})
	return nil
}

func (c *Controller) reportStartFailureLocked(ctx context.Context, t track.Track, err error) {
	kind, eventType := MessageResolveFailed, EventResolveFailed
	if errors.Is(err, ErrMatchFailed) {
		kind, eventType = MessageMatchFailed, EventMatchFailed
	}
	zlog.Warn().Msgf("playback: cannot start track: session_id=%s track=%s url=%s err=%v",
		c.sessionID, t.Title, t.URL, err)

	c.nowPlaying = nil
	c.sendEventLocked(Event{Type: eventType, Track: &t, Err: err})
	c.announceLocked(ctx, Message{Kind: kind, Track: &t, Err: err})
}

func (c *Controller) nowPlayingMessageLocked(t track.Track) Message {
	msg := Message{Kind: MessageNowPlaying, Track: &t}
	if next, ok := c.store.Next(); ok {
		msg.Next = &next
		msg.NextRandom = c.store.Shuffle()
	} else {
		msg.Timeout = c.config.DisconnectTimeout
	}
	return msg
}

// armDisconnectLocked starts the disconnect timer.
func (c *Controller) armDisconnectLocked() {
	c.disconnectSeq++
	seq := c.disconnectSeq
	c.disconnect = c.clock.AfterFunc(c.config.DisconnectTimeout, func() {
		c.onDisconnectTimer(seq)
	})
	zlog.Debug().Msgf("playback: disconnect timer armed: session_id=%s timeout=%v", c.sessionID, c.config.DisconnectTimeout)
	c.sendEventLocked(Event{Type: EventDisconnectArmed})
}

func (c *Controller) cancelDisconnectLocked() {
	if c.disconnect == nil {
		return
	}
	c.disconnect.Stop()
	c.disconnect = nil
	zlog.Debug().Msgf("playback: disconnect timer cancelled: session_id=%s", c.sessionID)
}

// onDisconnectTimer stops playback if the queue or the room is still empty.
func (c *Controller) onDisconnectTimer(seq uint64) {
	c.mu.Lock()

	if c.closed || seq != c.disconnectSeq || c.disconnect == nil {
		c.mu.Unlock()
		return
	}
	c.disconnect = nil

	_, hasTrack := c.store.Current()
	queueEmpty := (!hasTrack && c.store.RemainingCount() == 0) || c.unplayable
	roomEmpty := c.room.HumanCount() == 0
	if !queueEmpty && !roomEmpty {
		zlog.Debug().Msgf("playback: disconnect timer lapsed: session_id=%s", c.sessionID)
		c.mu.Unlock()
		return
	}

	zlog.Info().Msgf("playback: disconnecting: session_id=%s queue_empty=%t room_empty=%t", c.sessionID, queueEmpty, roomEmpty)
	c.announceLocked(c.ctx, Message{Kind: MessageDisconnected, RoomEmpty: !queueEmpty})
	subs := c.stopLocked()
	c.sendEventLocked(Event{Type: EventDisconnected})
	c.mu.Unlock()

	if err := c.teardown(subs); err != nil {
		zlog.Warn().Msgf("playback: teardown failed: session_id=%s err=%v", c.sessionID, err)
	}
}

// stopLocked resets the state machine and returns the subscriptions to close.
func (c *Controller) stopLocked() []io.Closer {
	c.gen++
	c.cancelDisconnectLocked()
	c.nowPlaying = nil
	c.subscribed = false
	c.endedDuringSkip = false
	c.unplayable = false
	c.setStateLocked(StateIdle)

	subs := c.subscriptions
	c.subscriptions = nil
	return subs
}

// teardown stops the player, closes subscriptions and destroys the
// connection. Called without the lock so player callbacks cannot deadlock.
func (c *Controller) teardown(subs []io.Closer) error {
	var errs error
	if err := c.player.Stop(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to stop player"))
	}
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close subscription"))
		}
	}
	if err := c.conn.Destroy(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to destroy connection"))
	}
	return errs
}

func (c *Controller) nowPlayingLocked() (track.Track, bool) {
	if c.nowPlaying == nil {
		return track.Track{}, false
	}
	return *c.nowPlaying, true
}

func (c *Controller) setStateLocked(s State) {
	if c.state != s {
		zlog.Debug().Msgf("playback: state changed: session_id=%s from=%s to=%s", c.sessionID, c.state, s)
	}
	c.state = s
}

// announceLocked hands msg to the messenger; failures are only logged.
func (c *Controller) announceLocked(ctx context.Context, msg Message) {
	msg.SessionID = c.sessionID
	if err := c.messenger.Announce(ctx, msg); err != nil {
		zlog.Warn().Msgf("playback: announce failed: session_id=%s kind=%s err=%v", c.sessionID, msg.Kind, err)
	}
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (c *Controller) sendEventLocked(e Event) {
	if c.closed {
		return
	}
	e.SessionID = c.sessionID
	e.State = c.state
	select {
	case c.eventCh <- e:
	default:
		zlog.Warn().Msgf("playback: event dropped: session_id=%s type=%s", c.sessionID, e.Type)
	}
}

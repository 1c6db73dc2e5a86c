package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/app/filter"
	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/app/session/registry"
	"github.com/osa030/voicequeue/internal/domain/playlist"
	"github.com/osa030/voicequeue/internal/domain/queue"
	"github.com/osa030/voicequeue/internal/domain/track"
	"github.com/osa030/voicequeue/internal/infra/config"
)

var (
	ErrSessionNotFound = registry.ErrSessionNotFound
	ErrSessionExists   = registry.ErrSessionExists
	ErrRejected        = errors.New("request rejected")
	ErrEmptyPlaylist   = errors.New("playlist has no tracks")
	ErrAlreadyInState  = errors.New("already in the requested state")
)

// RejectedError is returned when a filter refuses a track.
type RejectedError struct {
	Code  string // Filter return code, e.g. "duplicate_track"
	Track track.Track
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%v: %s (%s)", ErrRejected, e.Track.Title, e.Code)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Gateway  Gateway
	Resolver playback.Resolver
	Filters  *filter.Chain  // Optional
	Clock    playback.Clock // Defaults to a WallClock
}

// Manager owns the sessions and exposes the user command surface.
type Manager struct {
	config   *config.Config
	gateway  Gateway
	resolver playback.Resolver
	filters  *filter.Chain
	clock    playback.Clock
	now      func() time.Time

	sessions *registry.Store[*Session]
}

// NewManager creates a session manager.
func NewManager(cfg *config.Config, deps Deps) *Manager {
	if deps.Filters == nil {
		deps.Filters = filter.NewChain()
	}
	if deps.Clock == nil {
		deps.Clock = playback.WallClock{Resolution: cfg.Playback.TimerResolution}
	}
	return &Manager{
		config:   cfg,
		gateway:  deps.Gateway,
		resolver: deps.Resolver,
		filters:  deps.Filters,
		clock:    deps.Clock,
		now:      time.Now,
		sessions: registry.NewStore[*Session](),
	}
}

// Open creates a session. It fails with ErrSessionExists if one is open.
func (m *Manager) Open(ctx context.Context, sessionID string) error {
	_, err := m.sessions.Create(sessionID, func() (*Session, error) {
		return m.newSession(ctx, sessionID)
	})
	return err
}

// Sessions returns the ids of the open sessions.
func (m *Manager) Sessions() []string {
	return m.sessions.IDs()
}

func (m *Manager) session(sessionID string) (*Session, error) {
	return m.sessions.Get(sessionID)
}

func (m *Manager) sessionOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	s, created, err := m.sessions.GetOrCreate(sessionID, func() (*Session, error) {
		return m.newSession(ctx, sessionID)
	})
	if created {
		zlog.Info().Msgf("session: created on demand: session_id=%s", sessionID)
	}
	return s, err
}

func (m *Manager) newSession(ctx context.Context, sessionID string) (*Session, error) {
	t, err := m.gateway.Open(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open transport: session_id=%s", sessionID)
	}

	s := &Session{
		ID:        sessionID,
		CreatedAt: m.now(),
		transport: t,
		done:      make(chan struct{}),
	}
	s.controller = playback.NewController(playback.Config{
		DisconnectTimeout: m.config.Playback.DisconnectTimeout,
		EventBuffer:       m.config.Playback.EventBuffer,
	}, playback.Deps{
		SessionID:  sessionID,
		Store:      queue.NewStore(),
		Resolver:   m.resolver,
		Player:     t.Player,
		Connection: t.Connection,
		Room:       t.Room,
		Messenger:  t.Messenger,
		Clock:      m.clock,
	})

	go m.eventLoop(s)

	zlog.Info().Msgf("session: opened: session_id=%s", sessionID)
	return s, nil
}

// Enqueue appends a track after the filters accept it and starts playback
// if nothing is playing. The session is created if needed.
func (m *Manager) Enqueue(ctx context.Context, sessionID, requesterID string, t track.Track) error {
	return m.enqueueTrack(ctx, sessionID, requesterID, t, false)
}

// EnqueueFront inserts a track so it plays next.
func (m *Manager) EnqueueFront(ctx context.Context, sessionID, requesterID string, t track.Track) error {
	return m.enqueueTrack(ctx, sessionID, requesterID, t, true)
}

func (m *Manager) enqueueTrack(ctx context.Context, sessionID, requesterID string, t track.Track, front bool) error {
	s, err := m.sessionOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}

	t.RequesterID = requesterID
	t.AddedAt = m.now()

	req := m.filterRequest(s, requesterID)
	if result := m.filters.Execute(ctx, req, t); !result.Accepted {
		return &RejectedError{Code: result.Code, Track: t}
	}

	if err := s.controller.Update(func(q *queue.Store) error {
		if front {
			q.EnqueueFront(queue.NewTrack(t))
		} else {
			q.Enqueue(queue.NewTrack(t))
		}
		return nil
	}); err != nil {
		return errors.Wrap(err, "failed to enqueue track")
	}

	zlog.Info().Msgf("session: track queued: session_id=%s track=%s requester=%s front=%t",
		sessionID, t.Title, requesterID, front)
	return m.startPlayback(ctx, s)
}

// PlaylistRequest describes a playlist to enqueue.
type PlaylistRequest struct {
	Title   string
	URL     string
	Tracks  []track.Track
	Shuffle bool // Start shuffled
	Loop    bool // Repeat the playlist until it is skipped past
}

// EnqueuePlaylist appends a playlist as a single entry. Tracks refused by
// the filters are left out; it fails if none is accepted. It returns the
// number of accepted tracks.
func (m *Manager) EnqueuePlaylist(ctx context.Context, sessionID, requesterID string, p PlaylistRequest) (int, error) {
	if len(p.Tracks) == 0 {
		return 0, ErrEmptyPlaylist
	}
	s, err := m.sessionOrCreate(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	req := m.filterRequest(s, requesterID)
	now := m.now()
	accepted := make([]track.Track, 0, len(p.Tracks))
	var firstRejection *RejectedError
	for _, t := range p.Tracks {
		t.RequesterID = requesterID
		t.AddedAt = now
		if result := m.filters.Execute(ctx, req, t); !result.Accepted {
			if firstRejection == nil {
				firstRejection = &RejectedError{Code: result.Code, Track: t}
			}
			continue
		}
		accepted = append(accepted, t)
	}
	if len(accepted) == 0 {
		return 0, firstRejection
	}

	pl := playlist.New(p.Title, p.URL, accepted, p.Shuffle, p.Loop)
	if err := s.controller.Update(func(q *queue.Store) error {
		q.Enqueue(queue.NewPlaylist(pl))
		return nil
	}); err != nil {
		return 0, errors.Wrap(err, "failed to enqueue playlist")
	}

	zlog.Info().Msgf("session: playlist queued: session_id=%s playlist=%s tracks=%d rejected=%d",
		sessionID, p.Title, len(accepted), len(p.Tracks)-len(accepted))
	return len(accepted), m.startPlayback(ctx, s)
}

// filterRequest snapshots the upcoming tracks for the filters.
func (m *Manager) filterRequest(s *Session, requesterID string) filter.Request {
	req := filter.Request{SessionID: s.ID, RequesterID: requesterID}
	if cur, ok := s.controller.NowPlaying(); ok {
		req.Upcoming = append(req.Upcoming, cur)
	}
	s.controller.View(func(q *queue.Store) {
		req.Upcoming = append(req.Upcoming, q.Flatten(0)...)
	})
	for _, t := range req.Upcoming {
		if p := t.Playable(); !p.Live {
			req.QueueDuration += p.Duration
		}
	}
	return req
}

// startPlayback signals the controller. The start outlives the caller's
// request, so cancellation is detached.
func (m *Manager) startPlayback(ctx context.Context, s *Session) error {
	err := s.controller.StartPlayback(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, playback.ErrQueueEmpty) {
		return errors.Wrap(err, "failed to start playback")
	}
	return nil
}

// Resume restarts playback of a stopped session from its current track.
func (m *Manager) Resume(ctx context.Context, sessionID string) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	if err := s.controller.StartPlayback(context.WithoutCancel(ctx)); err != nil {
		return errors.Wrap(err, "failed to resume playback")
	}
	return nil
}

// Skip skips the current track and n-1 further tracks.
func (m *Manager) Skip(ctx context.Context, sessionID string, n int) ([]track.Track, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.controller.Skip(ctx, n)
}

// SetLoopMode sets the queue-level loop mode.
func (m *Manager) SetLoopMode(sessionID string, mode queue.LoopMode) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	return s.controller.Update(func(q *queue.Store) error {
		q.SetLoopMode(mode)
		zlog.Info().Msgf("session: loop mode set: session_id=%s mode=%s", sessionID, mode)
		return nil
	})
}

// SetPlaylistLoop sets the loop flag of the n-th queued playlist, toggling
// it when loop is nil. It returns the new flag and the playlist title.
func (m *Manager) SetPlaylistLoop(sessionID string, n int, loop *bool) (bool, string, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return false, "", err
	}
	var (
		on    bool
		title string
	)
	err = s.controller.Update(func(q *queue.Store) error {
		e, err := q.Playlist(n)
		if err != nil {
			return err
		}
		on = !e.Playlist.Loops()
		if loop != nil {
			on = *loop
		}
		e.Playlist.SetLoop(on)
		title = e.Playlist.Title
		return nil
	})
	return on, title, err
}

// ShuffleMode selects how ShufflePlaylist changes a playlist's order.
type ShuffleMode int

const (
	ShuffleToggle ShuffleMode = iota // Shuffle if unshuffled, unshuffle otherwise
	ShuffleOn                        // Shuffle with a new seed
	ShuffleOff                       // Restore the natural order
	Reshuffle                        // Replace the seed
)

var ErrInvalidShuffleMode = errors.New("invalid shuffle mode")

func (m ShuffleMode) String() string {
	switch m {
	case ShuffleToggle:
		return "toggle"
	case ShuffleOn:
		return "shuffle"
	case ShuffleOff:
		return "unshuffle"
	case Reshuffle:
		return "reshuffle"
	default:
		return "unknown"
	}
}

// ParseShuffleMode parses "toggle", "shuffle", "unshuffle" or "reshuffle".
func ParseShuffleMode(s string) (ShuffleMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "toggle":
		return ShuffleToggle, nil
	case "shuffle":
		return ShuffleOn, nil
	case "unshuffle":
		return ShuffleOff, nil
	case "reshuffle":
		return Reshuffle, nil
	default:
		return 0, errors.Wrapf(ErrInvalidShuffleMode, "%q", s)
	}
}

// ShufflePlaylist changes the order of the n-th queued playlist. Shuffling
// a shuffled playlist, or unshuffling an unshuffled one, fails with
// ErrAlreadyInState. It returns the mode applied and the playlist title.
func (m *Manager) ShufflePlaylist(sessionID string, n int, mode ShuffleMode) (ShuffleMode, string, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return mode, "", err
	}
	var title string
	err = s.controller.Update(func(q *queue.Store) error {
		e, err := q.Playlist(n)
		if err != nil {
			return err
		}
		p := e.Playlist
		title = p.Title
		if mode == ShuffleToggle {
			mode = ShuffleOn
			if p.Shuffled() {
				mode = ShuffleOff
			}
		}
		switch mode {
		case ShuffleOn:
			if p.Shuffled() {
				return errors.Wrap(ErrAlreadyInState, "playlist is already shuffled")
			}
			p.Shuffle()
		case ShuffleOff:
			if !p.Shuffled() {
				return errors.Wrap(ErrAlreadyInState, "playlist is already unshuffled")
			}
			p.Unshuffle()
		case Reshuffle:
			p.Reshuffle()
		default:
			return errors.Wrapf(ErrInvalidShuffleMode, "%d", int(mode))
		}
		zlog.Info().Msgf("session: playlist %s: session_id=%s playlist=%s", mode, sessionID, p.Title)
		return nil
	})
	return mode, title, err
}

// SetQueueShuffle turns the queue-level random pick on or off, toggling it
// when on is nil. It returns the new flag.
func (m *Manager) SetQueueShuffle(sessionID string, on *bool) (bool, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return false, err
	}
	var next bool
	err = s.controller.Update(func(q *queue.Store) error {
		next = !q.Shuffle()
		if on != nil {
			if *on == q.Shuffle() {
				return errors.Wrapf(ErrAlreadyInState, "queue shuffle is already %t", *on)
			}
			next = *on
		}
		q.SetShuffle(next)
		return nil
	})
	return next, err
}

// Queue returns a snapshot of the queue. Upcoming holds at most limit
// tracks; a limit of zero uses the configured preview length.
func (m *Manager) Queue(sessionID string, limit int) (QueueView, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return QueueView{}, err
	}
	if limit <= 0 {
		limit = m.config.Playback.QueuePreview
	}

	var v QueueView
	if cur, ok := s.controller.NowPlaying(); ok {
		v.NowPlaying = &cur
	}
	s.controller.View(func(q *queue.Store) {
		v.LoopMode = q.LoopMode().String()
		v.Shuffle = q.Shuffle()
		v.Remaining = q.RemainingCount()
		v.Upcoming = q.Flatten(limit)

		position := 0
		for _, e := range q.View() {
			switch e := e.(type) {
			case *queue.TrackEntry:
				t := e.Track
				v.Entries = append(v.Entries, EntryView{Track: &t})
				if p := t.Playable(); !p.Live {
					v.Duration += p.Duration
				}
			case *queue.PlaylistEntry:
				position++
				p := e.Playlist
				remaining := p.RemainingTracks()
				v.Entries = append(v.Entries, EntryView{Playlist: &PlaylistView{
					Position: position,
					Title:    p.Title,
					URL:      p.URL,
					Loop:     p.Loops(),
					Shuffled: p.Shuffled(),
					Tracks:   remaining,
					Total:    p.Len(),
				}})
				for _, t := range remaining {
					if pt := t.Playable(); !pt.Live {
						v.Duration += pt.Duration
					}
				}
			}
		}
	})
	return v, nil
}

// Status describes a session.
func (m *Manager) Status(sessionID string) (Status, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		SessionID:       s.ID,
		State:           s.controller.State(),
		DisconnectArmed: s.controller.DisconnectArmed(),
		Listeners:       s.transport.Room.HumanCount(),
		Stats:           s.Stats(),
		CreatedAt:       s.CreatedAt,
	}
	if cur, ok := s.controller.NowPlaying(); ok {
		st.NowPlaying = &cur
	}
	s.controller.View(func(q *queue.Store) {
		st.LoopMode = q.LoopMode().String()
		st.Shuffle = q.Shuffle()
		st.Remaining = q.RemainingCount()
		st.History = len(q.History())
		if next, ok := q.Next(); ok {
			st.Next = &next
		}
	})
	return st, nil
}

// History returns the tracks played in a session, most recent last.
func (m *Manager) History(sessionID string) ([]track.Track, error) {
	s, err := m.session(sessionID)
	if err != nil {
		return nil, err
	}
	var h []track.Track
	s.controller.View(func(q *queue.Store) {
		h = q.History()
	})
	return h, nil
}

// Stop stops playback and leaves the voice connection. The queue is kept
// so playback can be resumed.
func (m *Manager) Stop(ctx context.Context, sessionID string) error {
	s, err := m.session(sessionID)
	if err != nil {
		return err
	}
	zlog.Info().Msgf("session: stopping: session_id=%s", sessionID)
	return s.controller.Stop(ctx)
}

// Destroy stops playback, drops the queue and releases the transport.
func (m *Manager) Destroy(_ context.Context, sessionID string) error {
	s, err := m.sessions.Delete(sessionID)
	if err != nil {
		return err
	}
	err = s.close()
	m.gateway.Release(sessionID)
	zlog.Info().Msgf("session: destroyed: session_id=%s", sessionID)
	if err != nil {
		return errors.Wrapf(err, "failed to close session: session_id=%s", sessionID)
	}
	return nil
}

// Close destroys every session.
func (m *Manager) Close(ctx context.Context) error {
	var errs error
	for _, id := range m.sessions.IDs() {
		if err := m.Destroy(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// eventLoop consumes the controller's events until the controller closes.
func (m *Manager) eventLoop(s *Session) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: event loop panicked: session_id=%s err=%v", s.ID, r)
			// Restart loop to keep draining events
			go m.eventLoop(s)
			return
		}
		close(s.done)
	}()

	for event := range s.controller.Events() {
		m.handlePlaybackEvent(s, event)
	}
}

func (m *Manager) handlePlaybackEvent(s *Session, event playback.Event) {
	s.record(event)

	title := ""
	if event.Track != nil {
		title = event.Track.Title
	}
	switch event.Type {
	case playback.EventMatchFailed, playback.EventResolveFailed, playback.EventPlayerFault:
		zlog.Warn().Msgf("session: playback event: session_id=%s type=%s state=%s track=%s err=%v",
			s.ID, event.Type, event.State, title, event.Err)
	case playback.EventUnplayable:
		zlog.Warn().Msgf("session: no queued track could be started: session_id=%s state=%s", s.ID, event.State)
	case playback.EventDisconnected:
		zlog.Info().Msgf("session: left voice after idle timeout, queue kept: session_id=%s", s.ID)
	default:
		zlog.Debug().Msgf("session: playback event: session_id=%s type=%s state=%s track=%s",
			s.ID, event.Type, event.State, title)
	}
}

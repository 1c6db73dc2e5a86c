package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicequeue/internal/app/filter"
	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/domain/queue"
	"github.com/osa030/voicequeue/internal/domain/track"
	"github.com/osa030/voicequeue/internal/infra/config"
	"github.com/osa030/voicequeue/internal/infra/simplayer"
)

type manualTimer struct {
	mu      *sync.Mutex
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := !t.stopped
	t.stopped = true
	return pending
}

// manualClock never fires on its own.
type manualClock struct {
	mu sync.Mutex
}

func (c *manualClock) AfterFunc(time.Duration, func()) playback.Timer {
	return &manualTimer{mu: &c.mu}
}

type resolver struct{}

func (resolver) Resolve(_ context.Context, t track.Track) (playback.Resource, error) {
	return playback.Resource{Track: t, URL: "stream://" + t.ID}, nil
}

type messenger struct {
	mu    sync.Mutex
	kinds []playback.MessageKind
}

func (m *messenger) Announce(_ context.Context, msg playback.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, msg.Kind)
	return nil
}

type countingListener struct {
	playback.PlayerListener
	idles *atomic.Int32
}

func (l countingListener) OnIdle() {
	l.PlayerListener.OnIdle()
	l.idles.Add(1)
}

// countingPlayer counts the idle notifications delivered to the controller.
type countingPlayer struct {
	*simplayer.Player
	idles *atomic.Int32
}

func (p *countingPlayer) Listen(l playback.PlayerListener) {
	p.Player.Listen(countingListener{PlayerListener: l, idles: p.idles})
}

type gateway struct {
	sim       *simplayer.Gateway
	messenger *messenger
	idles     atomic.Int32

	mu       sync.Mutex
	released []string
}

func (g *gateway) Open(_ context.Context, sessionID string) (Transport, error) {
	p, c, r := g.sim.Open(sessionID)
	player := &countingPlayer{Player: p, idles: &g.idles}
	return Transport{Player: player, Connection: c, Room: r, Messenger: g.messenger}, nil
}

func (g *gateway) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = append(g.released, sessionID)
	g.sim.Release(sessionID)
}

func song(id string) track.Track {
	return track.Track{ID: id, Title: "Song " + id, URL: "https://media.example/" + id, Duration: 3 * time.Minute}
}

func newManager(t *testing.T, filters ...filter.Filter) (*Manager, *gateway) {
	t.Helper()
	clock := &manualClock{}
	gw := &gateway{sim: simplayer.NewGateway(clock, 1), messenger: &messenger{}}
	chain := filter.NewChain()
	for _, f := range filters {
		chain.Add(f)
	}
	cfg := &config.Config{Playback: config.PlaybackConfig{
		DisconnectTimeout: time.Minute,
		EventBuffer:       64,
		QueuePreview:      10,
	}}
	m := NewManager(cfg, Deps{Gateway: gw, Resolver: resolver{}, Filters: chain, Clock: clock})
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, gw
}

func nowPlaying(t *testing.T, m *Manager, sessionID string) string {
	t.Helper()
	st, err := m.Status(sessionID)
	require.NoError(t, err)
	if st.NowPlaying == nil {
		return ""
	}
	return st.NowPlaying.ID
}

func TestManager_EnqueueStartsPlayback(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "guild", "alice", song("A")))
	require.NoError(t, m.Enqueue(ctx, "guild", "bob", song("B")))

	st, err := m.Status("guild")
	require.NoError(t, err)
	assert.Equal(t, playback.StatePlaying, st.State)
	require.NotNil(t, st.NowPlaying)
	assert.Equal(t, "A", st.NowPlaying.ID)
	assert.Equal(t, "alice", st.NowPlaying.RequesterID)
	require.NotNil(t, st.Next)
	assert.Equal(t, "B", st.Next.ID)
	assert.Equal(t, 1, st.Remaining)
	assert.Equal(t, 1, st.Listeners)
	assert.Equal(t, []string{"guild"}, m.Sessions())

	assert.Eventually(t, func() bool {
		s, _ := m.Status("guild")
		return s.Stats.Played == 1
	}, time.Second, time.Millisecond)
}

func TestManager_EnqueueFront(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, "guild", "alice", song("A")))
	require.NoError(t, m.Enqueue(ctx, "guild", "alice", song("B")))

	require.NoError(t, m.EnqueueFront(ctx, "guild", "alice", song("X")))

	v, err := m.Queue("guild", 0)
	require.NoError(t, err)
	require.Len(t, v.Upcoming, 2)
	assert.Equal(t, "X", v.Upcoming[0].ID)
	assert.Equal(t, "B", v.Upcoming[1].ID)
}

func TestManager_EnqueueRejected(t *testing.T) {
	m, _ := newManager(t, filter.NewDuplicateTrackFilter())
	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, "guild", "alice", song("A")))

	err := m.Enqueue(ctx, "guild", "bob", song("A"))

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "duplicate_track", rejected.Code)
	v, err := m.Queue("guild", 0)
	require.NoError(t, err)
	assert.Empty(t, v.Upcoming)
}

func TestManager_EnqueuePlaylist(t *testing.T) {
	m, _ := newManager(t, filter.NewDuplicateTrackFilter())
	ctx := context.Background()

	_, err := m.EnqueuePlaylist(ctx, "guild", "alice", PlaylistRequest{Title: "Empty"})
	assert.ErrorIs(t, err, ErrEmptyPlaylist)

	require.NoError(t, m.Enqueue(ctx, "guild", "alice", song("A")))
	n, err := m.EnqueuePlaylist(ctx, "guild", "alice", PlaylistRequest{
		Title:  "Mix",
		URL:    "https://lists.example/mix",
		Tracks: []track.Track{song("A"), song("P1"), song("P2")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the duplicate of the playing track is left out")

	v, err := m.Queue("guild", 0)
	require.NoError(t, err)
	require.Len(t, v.Entries, 1)
	pl := v.Entries[0].Playlist
	require.NotNil(t, pl)
	assert.Equal(t, 1, pl.Position)
	assert.Equal(t, "Mix", pl.Title)
	assert.Equal(t, 2, pl.Total)
	assert.Equal(t, 2, v.Remaining)
	assert.Equal(t, 6*time.Minute, v.Duration)

	_, err = m.EnqueuePlaylist(ctx, "guild", "alice", PlaylistRequest{Title: "Again", Tracks: []track.Track{song("P1")}})
	var rejected *RejectedError
	assert.True(t, errors.As(err, &rejected), "all tracks rejected")
}

func TestManager_Skip(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, m.Enqueue(ctx, "guild", "alice", song(id)))
	}

	skipped, err := m.Skip(ctx, "guild", 1)
	require.NoError(t, err)
	require.Len(t, skipped, 2, "the playing track and the track skipped to")
	assert.Equal(t, "A", skipped[0].ID)
	assert.Equal(t, "B", skipped[1].ID)

	assert.Eventually(t, func() bool { return nowPlaying(t, m, "guild") == "B" }, time.Second, time.Millisecond)

	_, err = m.Skip(ctx, "guild", 5)
	var rangeErr *queue.RangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, 1, rangeErr.Max)
}

func TestManager_PlaylistCommands(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, "guild", "alice", song("A")))

	_, _, err := m.ShufflePlaylist("guild", 1, ShuffleToggle)
	assert.ErrorIs(t, err, queue.ErrNoPlaylists)

	_, err = m.EnqueuePlaylist(ctx, "guild", "alice", PlaylistRequest{
		Title:  "Mix",
		Tracks: []track.Track{song("P1"), song("P2"), song("P3")},
	})
	require.NoError(t, err)

	t.Run("shuffle", func(t *testing.T) {
		mode, title, err := m.ShufflePlaylist("guild", 1, ShuffleToggle)
		require.NoError(t, err)
		assert.Equal(t, ShuffleOn, mode)
		assert.Equal(t, "Mix", title)

		_, _, err = m.ShufflePlaylist("guild", 1, ShuffleOn)
		assert.ErrorIs(t, err, ErrAlreadyInState)

		mode, _, err = m.ShufflePlaylist("guild", 1, Reshuffle)
		require.NoError(t, err)
		assert.Equal(t, Reshuffle, mode)

		mode, _, err = m.ShufflePlaylist("guild", 1, ShuffleToggle)
		require.NoError(t, err)
		assert.Equal(t, ShuffleOff, mode)

		_, _, err = m.ShufflePlaylist("guild", 1, ShuffleOff)
		assert.ErrorIs(t, err, ErrAlreadyInState)
	})

	t.Run("out of range", func(t *testing.T) {
		_, _, err := m.ShufflePlaylist("guild", 2, ShuffleOn)
		assert.ErrorIs(t, err, queue.ErrInvalidPlaylistIndex)
	})

	t.Run("loop", func(t *testing.T) {
		on, _, err := m.SetPlaylistLoop("guild", 1, nil)
		require.NoError(t, err)
		assert.True(t, on)

		off := false
		on, title, err := m.SetPlaylistLoop("guild", 1, &off)
		require.NoError(t, err)
		assert.False(t, on)
		assert.Equal(t, "Mix", title)
	})
}

func TestManager_QueueSettings(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, "guild", "alice", song("A")))

	require.NoError(t, m.SetLoopMode("guild", queue.LoopQueue))

	on, err := m.SetQueueShuffle("guild", nil)
	require.NoError(t, err)
	assert.True(t, on)

	yes := true
	_, err = m.SetQueueShuffle("guild", &yes)
	assert.ErrorIs(t, err, ErrAlreadyInState)

	st, err := m.Status("guild")
	require.NoError(t, err)
	assert.Equal(t, "queue", st.LoopMode)
	assert.True(t, st.Shuffle)
}

func TestManager_StopAndResume(t *testing.T) {
	m, gw := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, "guild", "alice", song("A")))
	require.NoError(t, m.Enqueue(ctx, "guild", "alice", song("B")))

	require.NoError(t, m.Stop(ctx, "guild"))
	assert.Eventually(t, func() bool { return gw.idles.Load() == 1 }, time.Second, time.Millisecond)

	st, err := m.Status("guild")
	require.NoError(t, err)
	assert.Equal(t, playback.StateIdle, st.State)
	assert.Equal(t, 1, st.Remaining, "the queue survives a stop")

	require.NoError(t, m.Resume(ctx, "guild"))
	assert.Equal(t, "A", nowPlaying(t, m, "guild"))
}

func TestManager_Destroy(t *testing.T) {
	m, gw := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, "guild"))
	assert.ErrorIs(t, m.Open(ctx, "guild"), ErrSessionExists)

	require.NoError(t, m.Destroy(ctx, "guild"))

	assert.ErrorIs(t, m.Destroy(ctx, "guild"), ErrSessionNotFound)
	assert.Empty(t, m.Sessions())
	gw.mu.Lock()
	assert.Equal(t, []string{"guild"}, gw.released)
	gw.mu.Unlock()
	_, ok := gw.sim.Room("guild")
	assert.False(t, ok)
}

func TestManager_UnknownSession(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{name: "skip", call: func() error { _, err := m.Skip(ctx, "nope", 1); return err }},
		{name: "loop", call: func() error { return m.SetLoopMode("nope", queue.LoopOff) }},
		{name: "queue", call: func() error { _, err := m.Queue("nope", 0); return err }},
		{name: "status", call: func() error { _, err := m.Status("nope"); return err }},
		{name: "stop", call: func() error { return m.Stop(ctx, "nope") }},
		{name: "resume", call: func() error { return m.Resume(ctx, "nope") }},
		{name: "history", call: func() error { _, err := m.History("nope"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), ErrSessionNotFound)
		})
	}
}

func TestParseShuffleMode(t *testing.T) {
	tests := []struct {
		input    string
		expected ShuffleMode
		wantErr  bool
	}{
		{input: "", expected: ShuffleToggle},
		{input: "Shuffle", expected: ShuffleOn},
		{input: "unshuffle", expected: ShuffleOff},
		{input: " reshuffle ", expected: Reshuffle},
		{input: "sideways", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseShuffleMode(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidShuffleMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

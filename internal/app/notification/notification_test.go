package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/domain/track"
	"github.com/osa030/voicequeue/internal/infra/config"
)

type recordingStream struct {
	mu    sync.Mutex
	got   []*Notification
	block chan struct{}
	err   error
}

func (s *recordingStream) Send(n *Notification) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, n)
	return s.err
}

func (s *recordingStream) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.got))
	for i, n := range s.got {
		out[i] = n.Text
	}
	return out
}

func messages(t *testing.T) config.MessagesConfig {
	t.Helper()
	var m config.MessagesConfig
	require.NoError(t, defaults.Set(&m))
	return m
}

func song(title, artist string, d time.Duration) *track.Track {
	return &track.Track{ID: title, Title: title, Duration: d, Artists: []track.Artist{{Name: artist}}}
}

func TestManager_Broadcast(t *testing.T) {
	m := NewManager(100 * time.Millisecond)
	all := &recordingStream{}
	guildA := &recordingStream{}
	guildB := &recordingStream{}
	m.Subscribe("", all)
	m.Subscribe("a", guildA)
	idB := m.Subscribe("b", guildB)
	require.Equal(t, 3, m.SubscriberCount())

	m.Broadcast(&Notification{SessionID: "a", Text: "one"})
	m.Unsubscribe(idB)
	m.Broadcast(&Notification{SessionID: "b", Text: "two"})

	assert.Equal(t, []string{"one", "two"}, all.Texts())
	assert.Equal(t, []string{"one"}, guildA.Texts())
	assert.Empty(t, guildB.Texts())
	assert.Equal(t, uint64(1), all.got[0].SequenceNo)
	assert.Equal(t, uint64(2), all.got[1].SequenceNo)
}

func TestManager_Broadcast_SlowSubscriber(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	slow := &recordingStream{block: make(chan struct{})}
	defer close(slow.block)
	failing := &recordingStream{err: errors.New("closed")}
	m.Subscribe("", slow)
	m.Subscribe("", failing)

	start := time.Now()
	m.Broadcast(&Notification{SessionID: "a", Text: "x"})

	assert.Less(t, time.Since(start), time.Second, "slow subscriber must not stall the broadcast")
	assert.Equal(t, []string{"x"}, failing.Texts())
}

func TestManager_Broadcast_DropsFailingWatcher(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	failing := &recordingStream{err: errors.New("closed")}
	healthy := &recordingStream{}
	m.Subscribe("", failing)
	m.Subscribe("", healthy)

	for i := 0; i < maxFailures; i++ {
		m.Broadcast(&Notification{SessionID: "a", Text: "x"})
	}
	assert.Equal(t, 1, m.SubscriberCount(), "watcher dropped after repeated failures")

	m.Broadcast(&Notification{SessionID: "a", Text: "y"})
	assert.Len(t, failing.Texts(), maxFailures)
	assert.Len(t, healthy.Texts(), maxFailures+1)
	assert.False(t, healthy.got[0].Time.IsZero(), "broadcast stamps the time")
}

func TestManager_Close(t *testing.T) {
	m := NewManager(0)
	m.Subscribe("", &recordingStream{})
	m.Close()
	assert.Equal(t, 0, m.SubscriberCount())
}

func TestFormatter_Format(t *testing.T) {
	f := NewFormatter(messages(t))
	current := song("Blue Sky", "The Band", 3*time.Minute+5*time.Second)
	next := song("Green Grass", "Other", time.Minute)

	tests := []struct {
		name     string
		msg      playback.Message
		expected string
	}{
		{
			name:     "now playing with next",
			msg:      playback.Message{Kind: playback.MessageNowPlaying, Track: current, Next: next},
			expected: "Now playing: Blue Sky by The Band [3:05]\nUp next: Green Grass by Other",
		},
		{
			name:     "now playing with random next",
			msg:      playback.Message{Kind: playback.MessageNowPlaying, Track: current, Next: next, NextRandom: true},
			expected: "Now playing: Blue Sky by The Band [3:05]\nUp next: a random pick from the queue",
		},
		{
			name:     "now playing last track",
			msg:      playback.Message{Kind: playback.MessageNowPlaying, Track: current, Timeout: 5 * time.Minute},
			expected: "Now playing: Blue Sky by The Band [3:05]\nLeaving in 5 minutes.",
		},
		{
			name:     "queue empty",
			msg:      playback.Message{Kind: playback.MessageQueueEmpty, Timeout: 90 * time.Second},
			expected: "The queue is empty.\nLeaving in 2 minutes.",
		},
		{
			name:     "room empty",
			msg:      playback.Message{Kind: playback.MessageRoomEmpty, Timeout: 5 * time.Minute},
			expected: "Everyone left the voice channel.\nLeaving in 5 minutes.",
		},
		{
			name:     "unplayable",
			msg:      playback.Message{Kind: playback.MessageUnplayable, Timeout: 5 * time.Minute},
			expected: "None of the queued tracks could be played.\nLeaving in 5 minutes.",
		},
		{
			name:     "skipped",
			msg:      playback.Message{Kind: playback.MessageSkipped, Tracks: []track.Track{*current, *next}},
			expected: "Skipped 2 track(s)",
		},
		{
			name:     "match failed",
			msg:      playback.Message{Kind: playback.MessageMatchFailed, Track: current},
			expected: "Could not find a playable version of Blue Sky by The Band, skipping.",
		},
		{
			name: "playback error",
			msg: playback.Message{
				Kind: playback.MessagePlaybackError, Track: current,
				Position: 75 * time.Second, Err: errors.New("stream reset"),
			},
			expected: "Playback of Blue Sky failed at 1:15: stream reset",
		},
		{
			name:     "live stream",
			msg:      playback.Message{Kind: playback.MessageNowPlaying, Track: &track.Track{Title: "Radio", Live: true, Artists: []track.Artist{{Name: "FM"}}}},
			expected: "Now playing: Radio by FM [LIVE]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.Format(tt.msg))
		})
	}
}

func TestMessenger_Announce(t *testing.T) {
	m := NewManager(time.Second)
	stream := &recordingStream{}
	m.Subscribe("guild", stream)
	messenger := NewMessenger("guild", m, NewFormatter(messages(t)))

	for _, kind := range []playback.MessageKind{playback.MessageQueueEmpty, playback.MessageDisconnected} {
		require.NoError(t, messenger.Announce(context.Background(), playback.Message{Kind: kind}))
	}
	require.NoError(t, messenger.Close())

	assert.Eventually(t, func() bool { return len(stream.Texts()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"The queue is empty.", "Disconnected."}, stream.Texts())

	require.NoError(t, messenger.Announce(context.Background(), playback.Message{Kind: playback.MessageDisconnected}))
	require.NoError(t, messenger.Close(), "close is idempotent")
}

// Package notification renders playback messages and fans them out to
// announcement watchers.
package notification

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/app/playback"
)

const (
	// DefaultSendTimeout bounds a single stream send.
	DefaultSendTimeout = 500 * time.Millisecond

	// maxFailures is the number of consecutive failed sends after which a
	// watcher is dropped.
	maxFailures = 3
)

var errSendTimeout = errors.New("send timed out")

// Notification is a rendered announcement.
type Notification struct {
	SequenceNo uint64
	SessionID  string
	Kind       playback.MessageKind
	Text       string
	Track      string // ID of the track concerned, if any
	Time       time.Time
}

// Stream receives the notifications of one watcher.
type Stream interface {
	Send(*Notification) error
}

type subscription struct {
	id        string
	sessionID string // Empty receives every session
	stream    Stream
	failures  atomic.Int32
}

func (s *subscription) wants(n *Notification) bool {
	return s.sessionID == "" || s.sessionID == n.SessionID
}

// Manager keeps the watcher subscriptions and broadcasts announcements to
// them. Sequence numbers are global across sessions.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    atomic.Uint64
	sendTimeout   time.Duration
}

// NewManager creates a new notification manager. A non-positive
// sendTimeout selects DefaultSendTimeout.
func NewManager(sendTimeout time.Duration) *Manager {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Manager{
		subscriptions: make(map[string]*subscription),
		sendTimeout:   sendTimeout,
	}
}

// Subscribe registers stream and returns its subscription ID.
// An empty sessionID subscribes to every session.
func (m *Manager) Subscribe(sessionID string, stream Stream) string {
	sub := &subscription{id: uuid.NewString(), sessionID: sessionID, stream: stream}

	m.mu.Lock()
	m.subscriptions[sub.id] = sub
	m.mu.Unlock()

	zlog.Debug().Msgf("notification: subscribed: subscription_id=%s session_id=%s", sub.id, sessionID)
	return sub.id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps n with the next sequence number and sends it to every
// watcher of its session. A slow watcher costs at most the send timeout;
// a watcher failing maxFailures sends in a row is dropped.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.sequenceNo.Add(1)
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.wants(n) {
			subs = append(subs, sub)
		}
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Go(func() {
			if err := m.send(sub, n); err != nil {
				m.recordFailure(sub, err)
				return
			}
			sub.failures.Store(0)
		})
	}
	wg.Wait()
}

func (m *Manager) send(sub *subscription, n *Notification) error {
	done := make(chan error, 1)
	go func() {
		done <- sub.stream.Send(n)
	}()

	timer := time.NewTimer(m.sendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errSendTimeout
	}
}

func (m *Manager) recordFailure(sub *subscription, err error) {
	failures := sub.failures.Add(1)
	zlog.Debug().Msgf("notification: send failed: subscription_id=%s failures=%d err=%v", sub.id, failures, err)
	if failures < maxFailures {
		return
	}
	m.Unsubscribe(sub.id)
	zlog.Warn().Msgf("notification: dropped unresponsive watcher: subscription_id=%s session_id=%s", sub.id, sub.sessionID)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.subscriptions)
}

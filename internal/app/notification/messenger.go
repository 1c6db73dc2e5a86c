package notification

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/app/playback"
)

// messengerQueueSize bounds the announcements waiting for delivery.
const messengerQueueSize = 64

// Messenger delivers the announcements of one session through the manager.
// Announcements are rendered immediately and delivered in order by a single
// goroutine, so Announce never blocks.
type Messenger struct {
	sessionID string
	manager   *Manager
	formatter *Formatter

	queue     chan *Notification
	done      chan struct{}
	closeOnce sync.Once
}

var _ playback.Messenger = (*Messenger)(nil)

// NewMessenger creates a messenger for sessionID and starts its delivery loop.
func NewMessenger(sessionID string, manager *Manager, formatter *Formatter) *Messenger {
	m := &Messenger{
		sessionID: sessionID,
		manager:   manager,
		formatter: formatter,
		queue:     make(chan *Notification, messengerQueueSize),
		done:      make(chan struct{}),
	}
	go m.run()
	return m
}

// Announce implements playback.Messenger.
func (m *Messenger) Announce(_ context.Context, msg playback.Message) error {
	n := &Notification{
		SessionID: m.sessionID,
		Kind:      msg.Kind,
		Text:      m.formatter.Format(msg),
		Time:      time.Now(),
	}
	if msg.Track != nil {
		n.Track = msg.Track.ID
	}

	select {
	case <-m.done:
		return nil
	default:
	}
	select {
	case m.queue <- n:
	default:
		zlog.Warn().Msgf("notification: queue full, dropping announcement: session_id=%s kind=%s", m.sessionID, msg.Kind)
	}
	return nil
}

// Close stops the delivery loop. Pending announcements are delivered first.
func (m *Messenger) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	return nil
}

func (m *Messenger) run() {
	for {
		select {
		case n := <-m.queue:
			m.manager.Broadcast(n)
		case <-m.done:
			for {
				select {
				case n := <-m.queue:
					m.manager.Broadcast(n)
				default:
					return
				}
			}
		}
	}
}

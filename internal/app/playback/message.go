package playback

import (
	"time"

	"github.com/osa030/voicequeue/internal/domain/track"
)

// MessageKind identifies an announcement.
type MessageKind int

const (
	MessageNowPlaying    MessageKind = iota // A track started
	MessageSkipped                          // Tracks were skipped
	MessageQueueEmpty                       // Queue ran out, disconnect timer armed
	MessageRoomEmpty                        // No listeners left, disconnect timer armed
	MessageDisconnected                     // Disconnect timer fired
	MessageMatchFailed                      // Cross-catalog match failed
	MessageResolveFailed                    // Track could not be resolved or played
	MessagePlaybackError                    // Player fault mid-track
	MessageUnplayable                       // No queued track could be started, disconnect timer armed
)

func (k MessageKind) String() string {
	switch k {
	case MessageNowPlaying:
		return "now_playing"
	case MessageSkipped:
		return "skipped"
	case MessageQueueEmpty:
		return "queue_empty"
	case MessageRoomEmpty:
		return "room_empty"
	case MessageDisconnected:
		return "disconnected"
	case MessageMatchFailed:
		return "match_failed"
	case MessageResolveFailed:
		return "resolve_failed"
	case MessagePlaybackError:
		return "playback_error"
	case MessageUnplayable:
		return "unplayable"
	default:
		return "unknown"
	}
}

// Message is an announcement emitted at a state transition. Rendering is
// left to the messenger.
type Message struct {
	Kind      MessageKind
	SessionID string

	Track      *track.Track  // Track concerned
	Next       *track.Track  // Upcoming track (now playing)
	NextRandom bool          // Next track is picked at random (now playing)
	Tracks     []track.Track // Skipped tracks
	Position   time.Duration // Playback position (playback error)
	Timeout    time.Duration // Time until disconnect
	RoomEmpty  bool          // Disconnect cause (disconnected)
	Err        error
}

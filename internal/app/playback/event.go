package playback

import "github.com/osa030/voicequeue/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted    EventType = iota // Track started playing
	EventTrackEnded                       // Track finished playing
	EventTrackSkipped                     // Track was skipped
	EventQueueEmpty                       // Queue became empty
	EventDisconnectArmed                  // Disconnect timer armed
	EventDisconnected                     // Playback stopped by the disconnect timer
	EventMatchFailed                      // Cross-catalog match failed
	EventResolveFailed                    // Track could not be resolved or played
	EventPlayerFault                      // Player reported an error
	EventStopped                          // Playback stopped explicitly
	EventUnplayable                       // Every queued track failed to start
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackSkipped:
		return "track_skipped"
	case EventQueueEmpty:
		return "queue_empty"
	case EventDisconnectArmed:
		return "disconnect_armed"
	case EventDisconnected:
		return "disconnected"
	case EventMatchFailed:
		return "match_failed"
	case EventResolveFailed:
		return "resolve_failed"
	case EventPlayerFault:
		return "player_fault"
	case EventStopped:
		return "stopped"
	case EventUnplayable:
		return "unplayable"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type      EventType
	SessionID string
	Track     *track.Track // Track concerned (nil for some events)
	State     State        // Playback state after the event
	Err       error        // Failure cause for error events
}

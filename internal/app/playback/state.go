// Package playback provides the per-session playback state machine that
// drives the queue store, the resolver and the player.
package playback

// State represents the playback state.
type State int

const (
	StateIdle               State = iota // Nothing loaded (never started or stopped)
	StateStarting                        // Resolving the current track
	StatePlaying                         // Track is playing
	StateAwaitingDisconnect              // Queue empty, disconnect timer armed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateAwaitingDisconnect:
		return "awaiting_disconnect"
	default:
		return "unknown"
	}
}

package playback

import (
	"context"
	"time"

	"github.com/osa030/voicequeue/internal/domain/track"
)

// Resource is a resolved, streamable track.
type Resource struct {
	Track track.Track // Track as announced, carrying its cross-catalog match if any
	URL   string      // Stream URL handed to the player
	Live  bool        // Live stream without a fixed end
}

// Resolver turns a queued track into a streamable resource.
// Cross-catalog failures wrap ErrMatchFailed; anything else is treated as
// ErrResolveFailed.
type Resolver interface {
	Resolve(ctx context.Context, t track.Track) (Resource, error)
}

// PlayerFault is reported by the player when streaming a resource fails.
type PlayerFault struct {
	Resource Resource
	Position time.Duration // Playback position when the fault occurred
	Err      error
}

// PlayerListener receives player notifications.
// Implementations of Player must deliver them from their own goroutine,
// never from inside Play or Stop.
type PlayerListener interface {
	OnIdle()
	OnError(fault PlayerFault)
}

// Player is the audio player of one session. It emits exactly one idle
// notification per track completion or stop.
type Player interface {
	Play(ctx context.Context, res Resource) error
	Stop() error
	Listen(l PlayerListener)
}

// Connection is the voice connection the player streams into.
// Subscribe re-establishes a destroyed connection.
type Connection interface {
	Subscribe(p Player) error
	Destroy() error
}

// Messenger delivers announcements to the session's text channel.
// Announce must not block on delivery.
type Messenger interface {
	Announce(ctx context.Context, msg Message) error
}

// Room reports the members of the voice room.
type Room interface {
	// HumanCount returns the number of non-bot members.
	HumanCount() int
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback.
type Timer interface {
	// Stop cancels the callback and reports whether it was still pending.
	Stop() bool
}

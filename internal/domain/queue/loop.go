package queue

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// LoopMode is the queue-level repeat mode.
type LoopMode int

const (
	LoopOff   LoopMode = iota // Play through once
	LoopTrack                 // Repeat the current track
	LoopQueue                 // Wrap to the first entry after the last
)

// ErrInvalidLoopMode is returned when parsing an unknown loop mode.
var ErrInvalidLoopMode = errors.New("invalid loop mode")

func (m LoopMode) String() string {
	switch m {
	case LoopOff:
		return "off"
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "unknown"
	}
}

// ParseLoopMode parses "off", "track" or "queue" (case-insensitive).
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off":
		return LoopOff, nil
	case "track":
		return LoopTrack, nil
	case "queue":
		return LoopQueue, nil
	default:
		return LoopOff, errors.Wrapf(ErrInvalidLoopMode, "%q (want off, track or queue)", s)
	}
}

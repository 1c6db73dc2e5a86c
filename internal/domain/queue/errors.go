package queue

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/osa030/voicequeue/internal/domain/playlist"
)

var (
	// ErrInvalidAmount is returned when advancing by zero or a negative amount.
	ErrInvalidAmount = playlist.ErrInvalidAmount
	// ErrInvalidPlaylistIndex is returned when a playlist position is out of range.
	ErrInvalidPlaylistIndex = errors.New("invalid playlist index")
	// ErrNoPlaylists is returned when a playlist command finds no playlist in the queue.
	ErrNoPlaylists = errors.New("no playlists in the queue")
)

// RangeError reports a value outside the accepted inclusive range.
type RangeError struct {
	Err   error
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%v: %d (must be between %d-%d)", e.Err, e.Value, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error {
	return e.Err
}

// NewRangeError returns a RangeError wrapping err.
func NewRangeError(err error, value, lo, hi int) error {
	return &RangeError{Err: err, Value: value, Min: lo, Max: hi}
}

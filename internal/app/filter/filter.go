// Package filter provides the filter chain for enqueue request validation.
package filter

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/voicequeue/internal/domain/track"
)

// Rejection codes. Each one has a message template in the config.
const (
	CodeDuplicateTrack  = "duplicate_track"
	CodeDurationLimit   = "duration_limit_exceeded"
	CodeRequesterLimit  = "requester_limit"
	CodeQueueFull       = "queue_full"
	CodeQueueTimeExceed = "queue_time_exceeded"
)

// Request describes the session state an enqueue request is checked against.
type Request struct {
	SessionID     string
	RequesterID   string
	Upcoming      []track.Track // Current track followed by every queued track
	QueueDuration time.Duration // Total duration of Upcoming, live tracks excluded
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // One of the Code constants when rejected
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for request filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check.
	Check(ctx context.Context, req Request, t track.Track) Result
}

var registry = make(map[string]func() Filter)

// Register registers a filter factory under name.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// Names returns the registered filter names in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(registry))
}

// New returns a fresh, unconfigured instance of the named filter.
func New(name string) (Filter, bool) {
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// decodeSettings fills out from the raw settings map, applies `default`
// tags and runs `validate` tags.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

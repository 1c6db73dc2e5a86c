package filter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/domain/track"
)

// DurationLimitConfig represents the configuration for DurationLimitFilter.
// A max_minutes of 0 means no upper bound.
type DurationLimitConfig struct {
	MinMinutes float64 `yaml:"min_minutes" mapstructure:"min_minutes" validate:"gte=0"`
	MaxMinutes float64 `yaml:"max_minutes" mapstructure:"max_minutes" validate:"gte=0"`
}

func (c DurationLimitConfig) bounds() (lower, upper time.Duration) {
	return minutes(c.MinMinutes), minutes(c.MaxMinutes)
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// DurationLimitFilter rejects tracks that are too short or too long.
// Live streams have no duration and always pass.
type DurationLimitFilter struct {
	config *DurationLimitConfig
}

// NewDurationLimitFilter creates a new duration limit filter.
func NewDurationLimitFilter() *DurationLimitFilter {
	return &DurationLimitFilter{}
}

func (f *DurationLimitFilter) Name() string {
	return "duration_limit_filter"
}

func (f *DurationLimitFilter) Description() string {
	return "Checks if track duration is within allowed limits"
}

func (f *DurationLimitFilter) ReturnCodes() []string {
	return []string{CodeDurationLimit}
}

func (f *DurationLimitFilter) ValidateConfig(settings map[string]any) error {
	var config DurationLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	if config.MaxMinutes > 0 && config.MinMinutes > config.MaxMinutes {
		return errors.Newf("min_minutes (%v) cannot be greater than max_minutes (%v)", config.MinMinutes, config.MaxMinutes)
	}
	f.config = &config
	zlog.Info().Msgf("duration limit filter config: %+v", config)
	return nil
}

func (f *DurationLimitFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	if f.config == nil || t.Live {
		return Accept()
	}

	lower, upper := f.config.bounds()
	if t.Duration < lower || (upper > 0 && t.Duration > upper) {
		return Reject(CodeDurationLimit)
	}
	return Accept()
}

func init() {
	Register("duration_limit_filter", func() Filter {
		return NewDurationLimitFilter()
	})
}

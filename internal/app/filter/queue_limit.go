package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/domain/track"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
// Zero disables a limit.
type QueueLimitConfig struct {
	MaxTracks  int     `yaml:"max_tracks" mapstructure:"max_tracks" default:"500" validate:"gte=0"`
	MaxMinutes float64 `yaml:"max_minutes" mapstructure:"max_minutes" validate:"gte=0"`
}

// QueueLimitFilter rejects requests once the queue is full.
type QueueLimitFilter struct {
	config *QueueLimitConfig
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit_filter"
}

func (f *QueueLimitFilter) Description() string {
	return "Checks if the queue still has room for the track"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{CodeQueueFull, CodeQueueTimeExceed}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("queue limit filter config: %+v", config)
	return nil
}

func (f *QueueLimitFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	if f.config == nil {
		return Accept()
	}

	if f.config.MaxTracks > 0 && len(req.Upcoming) >= f.config.MaxTracks {
		return Reject(CodeQueueFull)
	}

	// The track would start after everything already queued; live streams
	// add nothing measurable.
	if f.config.MaxMinutes > 0 {
		limit := minutes(f.config.MaxMinutes)
		total := req.QueueDuration
		if !t.Live {
			total += t.Duration
		}
		if total > limit {
			return Reject(CodeQueueTimeExceed)
		}
	}

	return Accept()
}

func init() {
	Register("queue_limit_filter", func() Filter {
		return &QueueLimitFilter{}
	})
}

package filter

import (
	"context"
	"slices"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/domain/track"
)

// RequesterLimitConfig represents the configuration for RequesterLimitFilter.
type RequesterLimitConfig struct {
	MaxPending int      `yaml:"max_pending" mapstructure:"max_pending" default:"3" validate:"gte=1"`
	Exempt     []string `yaml:"exempt" mapstructure:"exempt"` // Requester IDs without a limit
}

// RequesterLimitFilter limits how many upcoming tracks one requester may have.
type RequesterLimitFilter struct {
	config *RequesterLimitConfig
}

func (f *RequesterLimitFilter) Name() string {
	return "requester_limit_filter"
}

func (f *RequesterLimitFilter) Description() string {
	return "Checks if the requester already has too many tracks waiting to be played"
}

func (f *RequesterLimitFilter) ReturnCodes() []string {
	return []string{CodeRequesterLimit}
}

func (f *RequesterLimitFilter) ValidateConfig(settings map[string]any) error {
	var config RequesterLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("requester limit filter config: %+v", config)
	return nil
}

func (f *RequesterLimitFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	if f.config == nil || req.RequesterID == "" {
		return Accept()
	}
	if slices.Contains(f.config.Exempt, req.RequesterID) {
		return Accept()
	}

	pending := 0
	for _, u := range req.Upcoming {
		if u.RequesterID == req.RequesterID {
			pending++
		}
	}
	if pending >= f.config.MaxPending {
		return Reject(CodeRequesterLimit)
	}
	return Accept()
}

func init() {
	Register("requester_limit_filter", func() Filter {
		return &RequesterLimitFilter{}
	})
}

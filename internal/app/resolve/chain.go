package resolve

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/domain/track"
)

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain tries multiple providers in order until one resolves the track.
type Chain struct {
	providers []ProviderWithMetadata
}

// NewChain creates a new provider chain.
func NewChain(providers []ProviderWithMetadata) *Chain {
	return &Chain{
		providers: providers,
	}
}

// Resolve returns the resource of the first provider that succeeds.
// When every provider fails the combined error is marked with
// playback.ErrResolveFailed.
func (c *Chain) Resolve(ctx context.Context, t track.Track) (playback.Resource, error) {
	var errs error
	for i, pm := range c.providers {
		if err := ctx.Err(); err != nil {
			return playback.Resource{}, errors.Wrap(err, "resolve canceled")
		}
		zlog.Debug().Msgf("trying provider: index=%d total=%d name=%s provider_type=%s track_id=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name(), t.ID)

		res, err := pm.Provider.Resolve(ctx, t)
		if err != nil {
			zlog.Warn().Msgf("provider failed, trying next: provider=%s track_id=%s error=%v", pm.DisplayName, t.ID, err)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "provider %s", pm.DisplayName))
			continue
		}

		zlog.Debug().Msgf("provider resolved track: provider=%s track_id=%s url=%s", pm.DisplayName, t.ID, res.URL)
		return res, nil
	}

	if errs == nil {
		errs = errors.New("no providers configured")
	}
	return playback.Resource{}, errors.Mark(
		errors.Wrapf(errs, "all providers failed for track %s", t.ID),
		playback.ErrResolveFailed,
	)
}

// Len returns the number of providers.
func (c *Chain) Len() int {
	return len(c.providers)
}

package resolve

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/infra/config"
)

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg *config.Config) (*Chain, error) {
	if len(cfg.Resolver.Providers) == 0 {
		return nil, errors.New("no resolve providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Resolver.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating resolve provider: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)
		switch pcfg.Type {
		case "direct":
			provider, err = NewDirectProvider(pcfg.Settings)

		case "proxy":
			provider, err = NewProxyProvider(pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("registered resolve provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewChain(providers), nil
}

// NewFromConfig creates a Resolver. searcher may be nil when no primary
// catalog is available for cross-catalog matching.
func NewFromConfig(cfg *config.Config, searcher Searcher) (*Resolver, error) {
	chain, err := NewChainFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	var matcher *Matcher
	if searcher != nil {
		matcher = NewMatcher(searcher, MatchConfig{
			Threshold:         cfg.Resolver.Match.Threshold,
			DurationTolerance: cfg.Resolver.Match.DurationTolerance,
			SearchLimit:       cfg.Resolver.Match.SearchLimit,
		})
	}
	return New(matcher, chain), nil
}

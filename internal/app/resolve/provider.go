// Package resolve turns queued tracks into streamable resources.
package resolve

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicequeue/internal/app/playback"
	"github.com/osa030/voicequeue/internal/domain/track"
)

// Provider produces a stream resource for a directly playable track.
type Provider interface {
	// Resolve returns the resource for t. t is never an unmatched
	// alternate-catalog track.
	Resolve(ctx context.Context, t track.Track) (playback.Resource, error)

	// Name returns the provider type name.
	Name() string
}

// ErrUnsupported is returned by a provider that cannot handle a track.
var ErrUnsupported = errors.New("track not supported by provider")

// decodeSettings decodes provider settings into cfg, applies defaults and validates.
func decodeSettings(settings map[string]any, cfg any) error {
	if err := mapstructure.Decode(settings, cfg); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(cfg); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

// DirectProviderConfig configures DirectProvider.
type DirectProviderConfig struct {
	Schemes []string `mapstructure:"schemes" default:"[\"http\",\"https\"]" validate:"min=1"`
	Hosts   []string `mapstructure:"hosts"` // Empty allows any host
}

// DirectProvider streams the track URL as is.
type DirectProvider struct {
	config DirectProviderConfig
}

// NewDirectProvider creates a DirectProvider from raw settings.
func NewDirectProvider(settings map[string]any) (*DirectProvider, error) {
	var config DirectProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("direct provider config: %+v", config)
	return &DirectProvider{config: config}, nil
}

// Resolve implements Provider.
func (p *DirectProvider) Resolve(_ context.Context, t track.Track) (playback.Resource, error) {
	if t.URL == "" {
		return playback.Resource{}, errors.Wrapf(ErrUnsupported, "track %s has no url", t.ID)
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return playback.Resource{}, errors.Wrapf(err, "invalid track url %q", t.URL)
	}
	if !slices.Contains(p.config.Schemes, strings.ToLower(u.Scheme)) {
		return playback.Resource{}, errors.Wrapf(ErrUnsupported, "scheme %q", u.Scheme)
	}
	if len(p.config.Hosts) > 0 && !slices.Contains(p.config.Hosts, strings.ToLower(u.Hostname())) {
		return playback.Resource{}, errors.Wrapf(ErrUnsupported, "host %q", u.Hostname())
	}
	return playback.Resource{Track: t, URL: t.URL, Live: t.Live}, nil
}

// Name implements Provider.
func (p *DirectProvider) Name() string {
	return "direct"
}

// ProxyProviderConfig configures ProxyProvider.
// The template may reference {id} and {url}; both are query-escaped.
type ProxyProviderConfig struct {
	URLTemplate string `mapstructure:"url_template" validate:"required"`
}

// ProxyProvider builds stream URLs pointing at a media proxy.
type ProxyProvider struct {
	config ProxyProviderConfig
}

// NewProxyProvider creates a ProxyProvider from raw settings.
func NewProxyProvider(settings map[string]any) (*ProxyProvider, error) {
	var config ProxyProviderConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("proxy provider config: %+v", config)
	return &ProxyProvider{config: config}, nil
}

// Resolve implements Provider.
func (p *ProxyProvider) Resolve(_ context.Context, t track.Track) (playback.Resource, error) {
	if t.ID == "" && t.URL == "" {
		return playback.Resource{}, errors.Wrap(ErrUnsupported, "track has neither id nor url")
	}
	r := strings.NewReplacer(
		"{id}", url.QueryEscape(t.ID),
		"{url}", url.QueryEscape(t.URL),
	)
	return playback.Resource{Track: t, URL: r.Replace(p.config.URLTemplate), Live: t.Live}, nil
}

// Name implements Provider.
func (p *ProxyProvider) Name() string {
	return "proxy"
}

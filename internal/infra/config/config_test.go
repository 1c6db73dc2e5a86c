package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
admin:
  token: test-admin-token
resolver:
  providers:
    - type: direct
      display_name: Direct
`

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{
		Admin: AdminConfig{Token: "test-admin-token"},
		Resolver: ResolverConfig{
			Providers: []ProviderConfig{{Type: "direct", DisplayName: "Direct"}},
		},
	}
	require.NoError(t, defaults.Set(&cfg))
	return cfg
}

func TestConfig_Validate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name: "valid config with spotify",
			mutate: func(c *Config) {
				c.Spotify.ClientID = "test-client-id"
				c.Spotify.ClientSecret = "test-client-secret"
			},
		},
		{
			name:    "missing spotify client secret",
			mutate:  func(c *Config) { c.Spotify.ClientID = "test-client-id" },
			wantErr: true,
			errMsg:  "ClientSecret",
		},
		{
			name:    "missing spotify client id",
			mutate:  func(c *Config) { c.Spotify.ClientSecret = "test-client-secret" },
			wantErr: true,
			errMsg:  "ClientID",
		},
		{
			name:    "missing admin token",
			mutate:  func(c *Config) { c.Admin.Token = "" },
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name:    "invalid market length",
			mutate:  func(c *Config) { c.Spotify.Market = "JAPAN" },
			wantErr: true,
			errMsg:  "Market",
		},
		{
			name:    "no providers",
			mutate:  func(c *Config) { c.Resolver.Providers = nil },
			wantErr: true,
			errMsg:  "Providers",
		},
		{
			name:    "provider without type",
			mutate:  func(c *Config) { c.Resolver.Providers[0].Type = "" },
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Resolver.Match.Threshold = 1.5 },
			wantErr: true,
			errMsg:  "Threshold",
		},
		{
			name:    "negative disconnect timeout",
			mutate:  func(c *Config) { c.Playback.DisconnectTimeout = -time.Second },
			wantErr: true,
			errMsg:  "DisconnectTimeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Playback.DisconnectTimeout)
	assert.Equal(t, 32, cfg.Playback.EventBuffer)
	assert.Equal(t, 0.6, cfg.Resolver.Match.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Resolver.Match.DurationTolerance)
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.False(t, cfg.Spotify.Enabled())
	assert.Contains(t, cfg.Messages.LeavingFooter, "{minutes}")
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
playback:
  disconnect_timeout: 90s
`))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Playback.DisconnectTimeout)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("admin: [unterminated"))
	assert.Error(t, err)

	_, err = Parse([]byte("admin:\n  token: x\n"))
	assert.Error(t, err, "resolver providers are required")
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	t.Setenv("ADMIN_TOKEN", "from-env")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Admin.Token)
	assert.True(t, cfg.Spotify.Enabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_GetMessage(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, cfg.Messages.DuplicateTrack, cfg.GetMessage("duplicate_track"))
	assert.Equal(t, cfg.Messages.QueueFull, cfg.GetMessage("queue_full"))
	assert.Equal(t, cfg.Messages.DefaultError, cfg.GetMessage("unknown_code"))
}

func TestConfig_IsFilterEnabled(t *testing.T) {
	cfg := validConfig(t)
	cfg.Filters = map[string]FilterConfig{
		"duplicate_track_filter": {Enabled: true},
		"queue_limit_filter":     {Enabled: false},
	}

	assert.True(t, cfg.IsFilterEnabled("duplicate_track_filter"))
	assert.False(t, cfg.IsFilterEnabled("queue_limit_filter"))
	assert.False(t, cfg.IsFilterEnabled("missing"))
}

// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Admin    AdminConfig             `yaml:"admin"`
	Log      LogConfig               `yaml:"log"`
	Playback PlaybackConfig          `yaml:"playback"`
	Resolver ResolverConfig          `yaml:"resolver"`
	Library  LibraryConfig           `yaml:"library"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
	Spotify  SpotifyConfig           `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token string `yaml:"token" validate:"required"`
}

// LogConfig represents log file rotation settings.
// Rotation applies only when logging to a file.
type LogConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" default:"50" validate:"gte=1"`
	MaxBackups int  `yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int  `yaml:"max_age_days" default:"14" validate:"gte=0"`
	Compress   bool `yaml:"compress"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout" default:"5m" validate:"gte=0"`
	EventBuffer       int           `yaml:"event_buffer" default:"32" validate:"gte=1"`
	AnnounceTimeout   time.Duration `yaml:"announce_timeout" default:"5s" validate:"gt=0"`
	QueuePreview      int           `yaml:"queue_preview" default:"10" validate:"gte=1,lte=100"`
	TimerResolution   time.Duration `yaml:"timer_resolution" default:"100ms" validate:"gt=0"`
}

// ResolverConfig represents stream resolution configuration.
type ResolverConfig struct {
	Providers []ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
	Match     MatchConfig      `yaml:"match"`
}

// ProviderConfig represents a single resolve provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// MatchConfig represents cross-catalog matching configuration.
type MatchConfig struct {
	Threshold         float64       `yaml:"threshold" default:"0.6" validate:"gt=0,lte=1"`
	DurationTolerance time.Duration `yaml:"duration_tolerance" default:"5s" validate:"gte=0"`
	SearchLimit       int           `yaml:"search_limit" default:"5" validate:"gte=1,lte=50"`
}

// LibraryConfig points at the primary catalog file.
type LibraryConfig struct {
	Path string `yaml:"path"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
// Announcement templates accept {title}, {artists}, {duration}, {url},
// {requester}, {count}, {minutes}, {position} and {error} placeholders.
type MessagesConfig struct {
	NowPlaying     string `yaml:"now_playing" default:"Now playing: {title} by {artists} [{duration}]"`
	NextTrack      string `yaml:"next_track" default:"Up next: {title} by {artists}"`
	NextRandom     string `yaml:"next_random" default:"Up next: a random pick from the queue"`
	Skipped        string `yaml:"skipped" default:"Skipped {count} track(s)"`
	QueueEmpty     string `yaml:"queue_empty" default:"The queue is empty."`
	RoomEmpty      string `yaml:"room_empty" default:"Everyone left the voice channel."`
	LeavingFooter  string `yaml:"leaving_footer" default:"Leaving in {minutes} minutes."`
	Disconnected   string `yaml:"disconnected" default:"Disconnected."`
	MatchFailed    string `yaml:"match_failed" default:"Could not find a playable version of {title} by {artists}, skipping."`
	ResolveFailed  string `yaml:"resolve_failed" default:"Could not load {title}, skipping."`
	PlaybackError  string `yaml:"playback_error" default:"Playback of {title} failed at {position}: {error}"`
	Unplayable     string `yaml:"unplayable" default:"None of the queued tracks could be played."`
	DefaultError   string `yaml:"default_error" default:"Request rejected."`
	DuplicateTrack string `yaml:"duplicate_track" default:"That track is already in the queue."`
	DurationLimit  string `yaml:"duration_limit_exceeded" default:"That track is too short or too long."`
	RequesterLimit string `yaml:"requester_limit" default:"You already have too many tracks in the queue."`
	QueueFull      string `yaml:"queue_full" default:"The queue is full."`
	QueueTime      string `yaml:"queue_time_exceeded" default:"The queue is too long to add that track."`
}

// SpotifyConfig represents Spotify API configuration.
// Spotify support is disabled when no credentials are set.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Enabled reports whether Spotify credentials are configured.
func (s SpotifyConfig) Enabled() bool {
	return s.ClientID != "" && s.ClientSecret != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
}

// GetMessage returns the message for the given filter code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimit
	case "requester_limit":
		return c.Messages.RequesterLimit
	case "queue_full":
		return c.Messages.QueueFull
	case "queue_time_exceeded":
		return c.Messages.QueueTime
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

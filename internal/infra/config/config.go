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
	Discord   DiscordConfig           `yaml:"discord"`
	Log       LogConfig               `yaml:"log"`
	Playback  PlaybackConfig          `yaml:"playback"`
	Resolver  ResolverConfig          `yaml:"resolver"`
	Voice     VoiceConfig             `yaml:"voice"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
	RateLimit RateLimitConfig         `yaml:"rate_limit"`
	Filters   map[string]FilterConfig `yaml:"filters"`
	Messages  MessagesConfig          `yaml:"messages"`
}

// DiscordConfig represents chat transport configuration.
type DiscordConfig struct {
	Token    string   `yaml:"token" validate:"required"`
	Prefix   string   `yaml:"prefix" default:"$" validate:"required,max=5"`
	OwnerIDs []string `yaml:"owner_ids"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	File  string `yaml:"file"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes" default:"5" validate:"gte=1,lte=1440"`
	ListingMaxChars    int `yaml:"listing_max_chars" default:"1900" validate:"gte=200,lte=4000"`
	CommandTimeoutSec  int `yaml:"command_timeout_sec" default:"120" validate:"gte=1,lte=600"`
}

// ResolverConfig represents media resolution configuration.
type ResolverConfig struct {
	Format       string `yaml:"format" default:"bestaudio[acodec=opus]/bestaudio/best" validate:"required"`
	SearchPrefix string `yaml:"search_prefix" default:"ytsearch1:" validate:"required"`
	TimeoutSec   int    `yaml:"timeout_sec" default:"60" validate:"gte=1,lte=600"`
}

// VoiceConfig represents audio session configuration.
type VoiceConfig struct {
	FFmpegPath      string `yaml:"ffmpeg_path" default:"ffmpeg" validate:"required"`
	BitrateKbps     int    `yaml:"bitrate_kbps" default:"128" validate:"gte=16,lte=512"`
	ReadyTimeoutSec int    `yaml:"ready_timeout_sec" default:"10" validate:"gte=1,lte=60"`
	// TranscodeOpus disables copying Opus sources straight to the voice connection.
	TranscodeOpus bool `yaml:"transcode_opus"`
}

// SpotifyConfig represents Spotify API configuration.
// Both credentials must be set to enable Spotify link expansion.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// RateLimitConfig represents per-user command throttling.
type RateLimitConfig struct {
	CommandsPerSecond float64 `yaml:"commands_per_second" default:"1" validate:"gt=0"`
	Burst             int     `yaml:"burst" default:"5" validate:"gte=1"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	DefaultError          string `yaml:"default_error" default:"Something went wrong, please try again."`
	UnknownCommand        string `yaml:"unknown_command" default:"Unknown command."`
	NoVoiceChannel        string `yaml:"no_voice_channel" default:"You need to be in a voice channel first."`
	AlreadyConnected      string `yaml:"already_connected" default:"I am already connected to another voice channel."`
	NotConnected          string `yaml:"not_connected" default:"I am not connected to a voice channel."`
	NotPlaying            string `yaml:"not_playing" default:"Nothing is playing."`
	NotPaused             string `yaml:"not_paused" default:"Playback is not paused."`
	EmptyQueue            string `yaml:"empty_queue" default:"The queue is empty."`
	UnresolvedTrack       string `yaml:"unresolved_track" default:"Could not find anything to play for that."`
	SessionFailure        string `yaml:"session_failure" default:"Could not stream audio to the voice channel."`
	StaleRequest          string `yaml:"stale_request" default:"Playback was stopped before your track was ready."`
	EmptyQuery            string `yaml:"empty_query" default:"Tell me what to play."`
	QueueFull             string `yaml:"queue_full" default:"The queue is full."`
	UserQueueFull         string `yaml:"user_queue_full" default:"You already have the maximum number of tracks queued."`
	UserBlocked           string `yaml:"user_blocked" default:"You are not allowed to request tracks."`
	DuplicateTrack        string `yaml:"duplicate_track" default:"That track is already queued."`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That track is too long or too short."`
	LiveStream            string `yaml:"live_stream" default:"Live streams are not allowed."`
	RateLimited           string `yaml:"rate_limited" default:"Slow down a little."`
	OwnerOnly             string `yaml:"owner_only" default:"Only bot owners can do that."`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

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
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "unknown_command":
		return c.Messages.UnknownCommand
	case "no_voice_channel":
		return c.Messages.NoVoiceChannel
	case "already_connected":
		return c.Messages.AlreadyConnected
	case "not_connected":
		return c.Messages.NotConnected
	case "not_playing":
		return c.Messages.NotPlaying
	case "not_paused":
		return c.Messages.NotPaused
	case "empty_queue":
		return c.Messages.EmptyQueue
	case "unresolved_track":
		return c.Messages.UnresolvedTrack
	case "session_failure":
		return c.Messages.SessionFailure
	case "stale_request":
		return c.Messages.StaleRequest
	case "empty_query":
		return c.Messages.EmptyQuery
	case "queue_full":
		return c.Messages.QueueFull
	case "user_queue_full":
		return c.Messages.UserQueueFull
	case "user_blocked":
		return c.Messages.UserBlocked
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "live_stream":
		return c.Messages.LiveStream
	case "rate_limited":
		return c.Messages.RateLimited
	case "owner_only":
		return c.Messages.OwnerOnly
	default:
		return c.Messages.DefaultError
	}
}

// IsOwner checks if the given user ID is a bot owner.
func (c *Config) IsOwner(userID string) bool {
	for _, id := range c.Discord.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		return errors.New("spotify client_id and client_secret must be set together")
	}

	return nil
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// IdleTimeout returns how long an idle voice session is kept open.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Playback.IdleTimeoutMinutes) * time.Minute
}

// CommandTimeout returns the deadline for a single command.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Playback.CommandTimeoutSec) * time.Second
}

// ResolveTimeout returns the deadline for a single resolution.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Resolver.TimeoutSec) * time.Second
}

// VoiceReadyTimeout returns how long to wait for a voice connection.
func (c *Config) VoiceReadyTimeout() time.Duration {
	return time.Duration(c.Voice.ReadyTimeoutSec) * time.Second
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// GetFilterSettings returns the settings for a filter.
func (c *Config) GetFilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}

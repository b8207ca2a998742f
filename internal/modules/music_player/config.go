package music_player

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Audio backends.
const (
	BackendFFmpeg   = "ffmpeg"
	BackendLavalink = "lavalink"
)

// Config holds the music player module configuration.
type Config struct {
	Backend string `env:"MUSIC_BACKEND" envDefault:"ffmpeg"`

	LavalinkAddress  string `env:"LAVALINK_ADDRESS"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD"`
	LavalinkSecure   bool   `env:"LAVALINK_SECURE"   envDefault:"false"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	CommandPrefix            string        `env:"MUSIC_COMMAND_PREFIX"             envDefault:"!"`
	MaxQueueSize             int           `env:"MUSIC_MAX_QUEUE_SIZE"             envDefault:"100"`
	MaxUserSongs             int           `env:"MUSIC_MAX_USER_SONGS"             envDefault:"3"`
	MaxConsecutiveSkips      int           `env:"MUSIC_MAX_CONSECUTIVE_SKIPS"      envDefault:"5"`
	ResolveTimeout           time.Duration `env:"MUSIC_RESOLVE_TIMEOUT"            envDefault:"30s"`
	StartTimeout             time.Duration `env:"MUSIC_START_TIMEOUT"              envDefault:"15s"`
	MaxConcurrentExtractions int64         `env:"MUSIC_MAX_CONCURRENT_EXTRACTIONS" envDefault:"4"`
	ReconnectAttempts        int           `env:"MUSIC_RECONNECT_ATTEMPTS"         envDefault:"5"`
	ReconnectDelayMax        time.Duration `env:"MUSIC_RECONNECT_DELAY_MAX"        envDefault:"5s"`

	YtdlpSocketTimeout time.Duration `env:"YTDLP_SOCKET_TIMEOUT" envDefault:"10s"`
	YtdlpRetries       int           `env:"YTDLP_RETRIES"        envDefault:"1"`
	YtdlpProxy         string        `env:"YTDLP_PROXY"`

	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
}

// LoadConfig loads the module configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendFFmpeg:
	case BackendLavalink:
		if c.LavalinkAddress == "" {
			errs = append(errs, errors.New("LAVALINK_ADDRESS is required for the lavalink backend"))
		}
		if c.LavalinkPassword == "" {
			errs = append(errs, errors.New("LAVALINK_PASSWORD is required for the lavalink backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MUSIC_BACKEND %q", c.Backend))
	}

	if c.CommandPrefix == "" {
		errs = append(errs, errors.New("MUSIC_COMMAND_PREFIX must not be empty"))
	}
	if c.MaxQueueSize <= 0 {
		errs = append(errs, errors.New("MUSIC_MAX_QUEUE_SIZE must be positive"))
	}
	if c.MaxUserSongs <= 0 {
		errs = append(errs, errors.New("MUSIC_MAX_USER_SONGS must be positive"))
	}
	if c.MaxConsecutiveSkips <= 0 {
		errs = append(errs, errors.New("MUSIC_MAX_CONSECUTIVE_SKIPS must be positive"))
	}
	if c.ReconnectAttempts < 0 {
		errs = append(errs, errors.New("MUSIC_RECONNECT_ATTEMPTS must not be negative"))
	}
	if (c.SpotifyClientID == "") != (c.SpotifyClientSecret == "") {
		errs = append(errs, errors.New(
			"SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together",
		))
	}

	return errors.Join(errs...)
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

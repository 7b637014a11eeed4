// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with only ffmpeg on PATH.
// YouTube chat needs either YOUTUBE_ACCESS_TOKEN/YOUTUBE_REFRESH_TOKEN, a token stored via the
// OAuth callback, or per-session credentials sent by the client.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP / websocket
	HTTPAddr       string
	AllowedOrigins []string
	MaxSessions    int
	RateLimitRPS   float64
	RateLimitBurst int

	// Relay
	FFmpegPath       string
	RelayStopTimeout time.Duration

	// Chat
	LocateMaxAttempts int
	LocateRetryDelay  time.Duration
	ChatPollInterval  time.Duration

	// YouTube OAuth
	YTClientID     string
	YTClientSecret string
	YTRedirectURI  string
	YTScopes       string
	YTAccessToken  string
	YTRefreshToken string

	// Twitch chat (optional second platform)
	TwitchChannel     string
	TwitchBotUsername string
	TwitchOAuthToken  string

	// Database (optional; stores the default YouTube token)
	DBDsn         string
	EncryptionKey string
}

// Load reads environment variables and applies defaults. Missing optional variables disable
// features (default credential, Twitch chat, token storage) rather than failing.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":4000"
	}
	if v := os.Getenv("WS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	var err error
	if cfg.MaxSessions, err = intEnv("WS_MAX_SESSIONS", 100); err != nil {
		return nil, err
	}
	cfg.RateLimitRPS = 2
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = f
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}

	// Relay
	cfg.FFmpegPath = os.Getenv("FFMPEG_PATH")
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.RelayStopTimeout, err = durationEnv("RELAY_STOP_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	// Chat
	if cfg.LocateMaxAttempts, err = intEnv("CHAT_LOCATE_MAX_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if cfg.LocateRetryDelay, err = durationEnv("CHAT_LOCATE_RETRY_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ChatPollInterval, err = durationEnv("CHAT_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}

	// YouTube
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRedirectURI = os.Getenv("YT_REDIRECT_URI")
	if cfg.YTRedirectURI == "" {
		cfg.YTRedirectURI = "http://localhost:4000/auth/youtube/callback"
	}
	cfg.YTScopes = os.Getenv("YT_SCOPES")
	if cfg.YTScopes == "" {
		cfg.YTScopes = "https://www.googleapis.com/auth/youtube.readonly"
	}
	cfg.YTAccessToken = os.Getenv("YOUTUBE_ACCESS_TOKEN")
	cfg.YTRefreshToken = os.Getenv("YOUTUBE_REFRESH_TOKEN")

	// Twitch
	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")

	// DB
	cfg.DBDsn = os.Getenv("DB_DSN")
	cfg.EncryptionKey = os.Getenv("ENCRYPTION_KEY")

	return cfg, cfg.Validate()
}

// Validate rejects settings that would make the relay or chat loops misbehave.
func (c *Config) Validate() error {
	if c.RelayStopTimeout <= 0 {
		return fmt.Errorf("RELAY_STOP_TIMEOUT must be positive")
	}
	if c.LocateMaxAttempts <= 0 {
		return fmt.Errorf("CHAT_LOCATE_MAX_ATTEMPTS must be positive")
	}
	if c.LocateRetryDelay <= 0 || c.ChatPollInterval <= 0 {
		return fmt.Errorf("chat delays must be positive")
	}
	if c.MaxSessions <= 0 {
		return fmt.Errorf("WS_MAX_SESSIONS must be positive")
	}
	return nil
}

// TwitchChatEnabled reports whether every Twitch IRC setting is present.
func (c *Config) TwitchChatEnabled() bool {
	return c.TwitchChannel != "" && c.TwitchBotUsername != "" && c.TwitchOAuthToken != ""
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration): %w", key, err)
	}
	return d, nil
}

// Command streamrelay relays browser-captured live media to RTMP destinations and streams the
// operator's YouTube live chat back over the same websocket.
// It:
//   - Loads configuration and initializes structured logging, metrics and tracing.
//   - Optionally connects to Postgres to keep the default YouTube token across restarts, and
//     refreshes that token in the background.
//   - Serves /ws for operator sessions plus OAuth, health and metrics endpoints.
//
// Shutdown is graceful on SIGINT/SIGTERM: every session's ffmpeg process is stopped.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/onnwee/streamrelay/chat"
	"github.com/onnwee/streamrelay/config"
	"github.com/onnwee/streamrelay/db"
	"github.com/onnwee/streamrelay/oauth"
	"github.com/onnwee/streamrelay/relay"
	"github.com/onnwee/streamrelay/server"
	"github.com/onnwee/streamrelay/session"
	"github.com/onnwee/streamrelay/telemetry"
	"github.com/onnwee/streamrelay/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("streamrelay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Token database (optional)
	var store *db.Store
	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		if store, err = db.NewStore(database, cfg.EncryptionKey); err != nil {
			slog.Error("token store unavailable", slog.Any("err", err))
			os.Exit(1)
		}
	} else {
		slog.Info("DB_DSN not set; youtube tokens from the OAuth callback are kept in memory only")
	}

	var tokens youtubeapi.TokenStore
	var pinger server.Pinger
	if store != nil {
		tokens, pinger = store, store
	}
	yt := youtubeapi.New(cfg, tokens)
	defaultCred, err := yt.DefaultCredential(ctx)
	if err != nil {
		slog.Warn("default youtube credential unavailable", slog.Any("err", err))
	}
	if defaultCred == nil {
		slog.Info("no default youtube credential; chat needs per-session tokens or /auth/youtube/start")
	}

	if store != nil && yt.Configured() {
		oauth.StartRefresher(ctx, store, youtubeapi.Provider, 10*time.Minute, 20*time.Minute, yt.Refresh)
	}

	if cfg.TwitchChatEnabled() {
		slog.Info("twitch chat enabled", slog.String("channel", cfg.TwitchChannel))
	}

	sessions := session.NewManager(session.Options{
		Launcher:    relay.ExecLauncher{Path: cfg.FFmpegPath, Logger: slog.Default().With(slog.String("component", "relay"))},
		StopTimeout: cfg.RelayStopTimeout,
		NewPlatform: func(ctx context.Context, cred *youtubeapi.Credential) (chat.Platform, error) {
			c, err := youtubeapi.NewClient(ctx, cred)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Chat: chat.Options{
			MaxAttempts:  cfg.LocateMaxAttempts,
			RetryDelay:   cfg.LocateRetryDelay,
			PollInterval: cfg.ChatPollInterval,
			Clock:        clockwork.NewRealClock(),
		},
		Twitch: chat.TwitchConfig{
			Channel:    cfg.TwitchChannel,
			Username:   cfg.TwitchBotUsername,
			OAuthToken: cfg.TwitchOAuthToken,
		},
	})
	defer sessions.StopAll()

	h := server.NewHandlers(ctx, server.Deps{
		Config:            cfg,
		Sessions:          sessions,
		YouTube:           yt,
		DefaultCredential: defaultCred,
		Store:             pinger,
	})
	go func() {
		if err := server.Start(ctx, h, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down", slog.Int("sessions", sessions.Len()))
}

package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// TwitchPlatform is the platform label on messages from TwitchSource.
const TwitchPlatform = "Twitch"

// TwitchConfig holds the IRC identity used to read a channel.
type TwitchConfig struct {
	Channel    string
	Username   string
	OAuthToken string
}

// Enabled reports whether every field is set.
func (c TwitchConfig) Enabled() bool {
	return c.Channel != "" && c.Username != "" && c.OAuthToken != ""
}

// TwitchSource pushes a Twitch channel's chat to a Listener for the lifetime of a session.
type TwitchSource struct {
	cfg      TwitchConfig
	listener Listener
	logger   *slog.Logger

	mu       sync.Mutex // serializes listener calls
	stopped  atomic.Bool
	client   *twitch.Client
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewTwitchSource returns a source for cfg; Start connects it.
func NewTwitchSource(cfg TwitchConfig, l Listener, logger *slog.Logger) *TwitchSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwitchSource{cfg: cfg, listener: l, logger: logger.With(slog.String("component", "chat"), slog.String("platform", TwitchPlatform))}
}

// Start joins the channel in the background. The connection is closed when ctx ends or Stop is
// called.
func (t *TwitchSource) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	client := twitch.NewClient(t.cfg.Username, t.cfg.OAuthToken)
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		if t.stopped.Load() {
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.stopped.Load() {
			return
		}
		t.listener.ChatMessages([]Message{twitchMessage(msg, time.Now())})
	})
	client.OnConnect(func() {
		// Stop raced the dial
		if ctx.Err() != nil {
			_ = client.Disconnect()
		}
	})
	client.Join(t.cfg.Channel)

	t.mu.Lock()
	t.client, t.cancel = client, cancel
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = client.Disconnect()
	}()
	go func() {
		t.logger.Info("joining twitch chat", slog.String("channel", t.cfg.Channel))
		if err := client.Connect(); err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
			t.logger.Error("twitch chat connect error", slog.Any("err", err))
		}
	}()
}

// Stop disconnects; no message reaches the Listener after Stop returns.
func (t *TwitchSource) Stop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		t.mu.Lock()
		cancel := t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

func twitchMessage(msg twitch.PrivateMessage, now time.Time) Message {
	user := msg.User.DisplayName
	if user == "" {
		user = msg.User.Name
	}
	at := msg.Time
	if at.IsZero() {
		at = now
	}
	return newMessage(TwitchPlatform, user, msg.Message, at)
}

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/streamrelay/telemetry"
)

// Locator finds the caller's live broadcast, retrying on a fixed delay.
type Locator struct {
	platform Platform
	clock    clockwork.Clock
	max      int
	delay    time.Duration
	logger   *slog.Logger
}

// NewLocator returns a Locator making at most maxAttempts lookups, delay apart.
func NewLocator(p Platform, clock clockwork.Clock, maxAttempts int, delay time.Duration, logger *slog.Logger) *Locator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{platform: p, clock: clock, max: maxAttempts, delay: delay, logger: logger}
}

// Locate makes a single lookup and returns the first live broadcast with a chat.
func (l *Locator) Locate(ctx context.Context) (Broadcast, error) {
	ctx, span := telemetry.StartSpan(ctx, "chat", "chat.locate")
	defer span.End()

	list, err := l.platform.ListMyBroadcasts(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return Broadcast{}, fmt.Errorf("list broadcasts: %w", err)
	}
	for _, b := range list {
		if b.Live() {
			telemetry.SetSpanSuccess(span)
			return b, nil
		}
	}
	return Broadcast{}, ErrBroadcastNotFound
}

// Run calls Locate until it succeeds, ctx ends, or attempts run out. Exhaustion returns an error
// wrapping both ErrChatExhausted and the last failure.
func (l *Locator) Run(ctx context.Context) (Broadcast, error) {
	retry := Retry{Max: l.max, Delay: l.delay}
	for {
		b, err := l.Locate(ctx)
		if err == nil {
			telemetry.LocateAttempt("found")
			l.logger.Info("broadcast located", slog.String("broadcast", b.ID), slog.String("title", b.Title), slog.Int("attempt", retry.Attempts()+1))
			return b, nil
		}
		if ctx.Err() != nil {
			return Broadcast{}, ctx.Err()
		}
		telemetry.LocateAttempt("miss")

		wait, ok := retry.Fail(l.clock.Now())
		if !ok {
			telemetry.LocateExhausted()
			l.logger.Warn("broadcast locate exhausted", slog.Int("attempts", retry.Attempts()), slog.Any("err", err))
			return Broadcast{}, fmt.Errorf("%w after %d attempts: %w", ErrChatExhausted, retry.Attempts(), err)
		}
		l.logger.Info("no live broadcast yet; retrying",
			slog.Int("attempt", retry.Attempts()), slog.Int("max", retry.Max),
			slog.Duration("wait", wait), slog.String("class", Classify(err).String()), slog.Any("err", err))

		t := l.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Broadcast{}, ctx.Err()
		case <-t.Chan():
		}
	}
}

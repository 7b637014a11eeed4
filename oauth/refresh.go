// Package oauth keeps a persisted OAuth token fresh in the background. It wakes on a jittered
// interval and refreshes when the token's remaining lifetime falls inside a window.
package oauth

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

// Store is the token persistence the refresher reads and writes. db.Store implements it.
type Store interface {
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// StartRefresher launches a goroutine that periodically checks the stored token for provider and
// refreshes it. It returns immediately; the goroutine exits when ctx ends.
// interval: how often to wake up and check.
// window: refresh when remaining lifetime <= window.
func StartRefresher(ctx context.Context, store Store, provider string, interval, window time.Duration, fn RefreshFunc) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	log := slog.Default().With(slog.String("component", "oauth_refresher"), slog.String("provider", provider))
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/2) + 1))
	go func() {
		if !sleep(ctx, initialJitter) {
			return
		}
		for {
			if !sleep(ctx, nextInterval(interval)) {
				return
			}
			if !refreshOnce(ctx, store, provider, interval, window, fn, log) {
				return
			}
		}
	}()
}

// refreshOnce returns false when ctx ended mid-cycle.
func refreshOnce(ctx context.Context, store Store, provider string, interval, window time.Duration, fn RefreshFunc, log *slog.Logger) bool {
	at, rt, exp, scope, err := store.GetOAuthToken(ctx, provider)
	if err != nil {
		log.Debug("token lookup failed", slog.Any("err", err))
		return ctx.Err() == nil
	}
	if rt == "" || time.Until(exp) > window {
		return true
	}
	// Small pre-refresh jitter to avoid stampedes when many pods see the same expiry.
	preMax := min(5*time.Second, interval/4)
	//nolint:gosec // G404: math/rand is sufficient for jitter, not used for security
	if !sleep(ctx, time.Duration(rand.Int63n(int64(preMax)+1))) {
		return false
	}
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := fn(ctx2, rt)
	cancel()
	if err != nil {
		log.Warn("token refresh failed", slog.Any("err", err))
		return ctx.Err() == nil
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := store.UpsertOAuthToken(ctx, provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		log.Warn("token persist failed", slog.Any("err", err))
		return ctx.Err() == nil
	}
	log.Info("token refreshed", slog.Time("expires_at", newExp), slog.Bool("rotated", at != newAT))
	return true
}

// nextInterval adds ±20% jitter, never going below half the interval.
func nextInterval(interval time.Duration) time.Duration {
	jitterRange := int64(interval / 5)
	if jitterRange <= 0 {
		return interval
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	next := interval + time.Duration(rand.Int63n(jitterRange*2)-jitterRange)
	if next < interval/2 {
		next = interval / 2
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

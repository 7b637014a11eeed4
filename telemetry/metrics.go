// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RelayStarts        prometheus.Counter
	RelayFailures      *prometheus.CounterVec
	RelayBytesIngested prometheus.Counter
	LocateAttempts     *prometheus.CounterVec
	ChatExhausted      prometheus.Counter
	ChatMessages       *prometheus.CounterVec
	ChatFetchErrors    *prometheus.CounterVec

	// Histograms (seconds)
	ChatFetchDuration prometheus.Observer

	// Gauges
	SessionsActive prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RelayStarts = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_starts_total", Help: "Number of relay processes spawned"})
		RelayFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_failures_total", Help: "Relay failures by phase (spawn, runtime)"}, []string{"phase"})
		RelayBytesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_ingested_bytes_total", Help: "Bytes written to relay process input"})
		LocateAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_locate_attempts_total", Help: "Broadcast locate attempts by result"}, []string{"result"})
		ChatExhausted = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_locate_exhausted_total", Help: "Chat subsystems that gave up locating a broadcast"})
		ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_messages_total", Help: "Chat messages forwarded to clients"}, []string{"platform"})
		ChatFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_fetch_errors_total", Help: "Chat poll failures by class"}, []string{"class"})
		ChatFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_fetch_duration_seconds", Help: "Chat page fetch duration seconds", Buckets: prometheus.DefBuckets})
		SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "sessions_active", Help: "Sessions currently registered"})
	})
}

// RelayStarted counts a spawned relay process.
func RelayStarted() {
	if RelayStarts != nil {
		RelayStarts.Inc()
	}
}

// RelayFailed counts a relay failure in the given phase.
func RelayFailed(phase string) {
	if RelayFailures != nil {
		RelayFailures.WithLabelValues(phase).Inc()
	}
}

// AddIngestedBytes records bytes written to a relay process.
func AddIngestedBytes(n int) {
	if RelayBytesIngested != nil {
		RelayBytesIngested.Add(float64(n))
	}
}

// LocateAttempt records one broadcast lookup; result is "found" or "miss".
func LocateAttempt(result string) {
	if LocateAttempts != nil {
		LocateAttempts.WithLabelValues(result).Inc()
	}
}

// LocateExhausted records a chat subsystem giving up.
func LocateExhausted() {
	if ChatExhausted != nil {
		ChatExhausted.Inc()
	}
}

// CountChatMessages records forwarded chat messages for platform.
func CountChatMessages(platform string, n int) {
	if ChatMessages != nil && n > 0 {
		ChatMessages.WithLabelValues(platform).Add(float64(n))
	}
}

// ChatFetchFailed records a failed poll cycle.
func ChatFetchFailed(class string) {
	if ChatFetchErrors != nil {
		ChatFetchErrors.WithLabelValues(class).Inc()
	}
}

// SetSessionsActive records the registry size.
func SetSessionsActive(n int) {
	if SessionsActive != nil {
		SessionsActive.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

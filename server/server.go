// Package server exposes the HTTP surface: the /ws operator transport, the YouTube OAuth flow,
// health probes and metrics. Every request carries a correlation ID in its context for logging.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/streamrelay/telemetry"
)

// NewMux returns the HTTP handler with all routes. ctx bounds background work such as the rate
// limiter cleanup.
func NewMux(ctx context.Context, h *Handlers) http.Handler {
	limiter := newIPRateLimiter(ctx, h.cfg.RateLimitRPS, h.cfg.RateLimitBurst)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.Handle("/ws", rateLimitMiddleware(http.HandlerFunc(h.HandleWebsocket), limiter))
	mux.Handle("/auth/youtube/start", rateLimitMiddleware(http.HandlerFunc(h.HandleYouTubeOAuthStart), limiter))
	mux.Handle("/auth/youtube/callback", rateLimitMiddleware(http.HandlerFunc(h.HandleYouTubeOAuthCallback), limiter))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		// the websocket span would cover the whole connection
		if r.URL.Path == "/ws" {
			mux.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path, telemetry.HTTPAttrs(r.Method, r.URL.Path)...)
		defer span.End()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		mux.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
	return withCORS(handler, h.cfg.AllowedOrigins)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server on addr and shuts down gracefully on context cancellation.
// Open websocket connections are closed by their handlers once ctx is done.
func Start(ctx context.Context, h *Handlers, addr string) error {
	// no Read/WriteTimeout: /ws connections live as long as the broadcast
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(ctx, h),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr), slog.String("component", "http"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}

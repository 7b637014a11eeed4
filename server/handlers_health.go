package server

import (
	"encoding/json"
	"net/http"
	"os/exec"
)

// HandleHealthz responds to liveness probes.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readyCheck struct {
	name string
	fn   func() error
}

// HandleReadyz reports whether new sessions can be served: ffmpeg must be on PATH and the token
// database, when configured, must answer.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []readyCheck{
		{"ffmpeg", func() error {
			_, err := exec.LookPath(h.cfg.FFmpegPath)
			return err
		}},
	}
	if h.store != nil {
		checks = append(checks, readyCheck{"database", func() error { return h.store.Ping(r.Context()) }})
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ready", "sessions": h.sessions.Len()})
}

package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/streamrelay/config"
	"github.com/onnwee/streamrelay/session"
	"github.com/onnwee/streamrelay/youtubeapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
	oauthStateTTL  = 10 * time.Minute
)

// Pinger is the readiness view of the token database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP handlers need. YouTube, DefaultCredential and Store may be
// nil; the corresponding features are then disabled.
type Deps struct {
	Config            *config.Config
	Sessions          *session.Manager
	YouTube           *youtubeapi.Service
	DefaultCredential *youtubeapi.Credential
	Store             Pinger
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx      context.Context
	cfg      *config.Config
	sessions *session.Manager
	yt       *youtubeapi.Service
	store    Pinger
	upgrader websocket.Upgrader
	conns    atomic.Int64

	credMu      sync.RWMutex
	defaultCred *youtubeapi.Credential

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	h := &Handlers{
		ctx:         ctx,
		cfg:         deps.Config,
		sessions:    deps.Sessions,
		yt:          deps.YouTube,
		store:       deps.Store,
		defaultCred: deps.DefaultCredential,
		stateStore:  make(map[string]time.Time),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 16 << 10,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// DefaultCredential returns the credential used by sessions that send none.
func (h *Handlers) DefaultCredential() *youtubeapi.Credential {
	h.credMu.RLock()
	defer h.credMu.RUnlock()
	return h.defaultCred
}

func (h *Handlers) setDefaultCredential(c *youtubeapi.Credential) {
	h.credMu.Lock()
	defer h.credMu.Unlock()
	h.defaultCred = c
	slog.Info("default youtube credential replaced", slog.String("component", "youtube_oauth"))
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}
	if len(h.stateStore) >= maxOAuthStates {
		return false
	}
	h.stateStore[state] = expiry
	return true
}

// consumeOAuthState reports whether state was issued and unexpired, removing it either way.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	delete(h.stateStore, state)
	return ok && !time.Now().After(exp)
}

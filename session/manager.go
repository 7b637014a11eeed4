package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/streamrelay/chat"
	"github.com/onnwee/streamrelay/relay"
	"github.com/onnwee/streamrelay/telemetry"
	"github.com/onnwee/streamrelay/youtubeapi"
)

// PlatformFactory builds the chat platform client for a credential.
type PlatformFactory func(ctx context.Context, cred *youtubeapi.Credential) (chat.Platform, error)

// Options configures every session a Manager creates.
type Options struct {
	Launcher    relay.Launcher
	Encoding    *relay.Encoding
	StopTimeout time.Duration

	NewPlatform PlatformFactory
	Chat        chat.Options
	Twitch      chat.TwitchConfig

	Logger *slog.Logger
}

// Manager starts, feeds and stops sessions by ID.
type Manager struct {
	reg    *Registry
	opts   Options
	logger *slog.Logger
}

// NewManager returns a Manager with an empty registry.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = logger
	return &Manager{reg: NewRegistry(), opts: opts, logger: logger.With(slog.String("component", "session"))}
}

// Start begins relaying for id to destinations and, with cred, polling chat. Any session already
// registered under id is stopped first. Invalid destinations report Failed to sink and register
// nothing. A relay spawn failure is returned but the session stays registered so chat keeps
// running and a later Stop or Start cleans up.
func (m *Manager) Start(ctx context.Context, id ID, sink Sink, destinations []string, cred *youtubeapi.Credential) error {
	dst, err := relay.ParseDestinations(destinations)
	if err != nil {
		m.Stop(id)
		m.logger.Warn("rejecting destinations", slog.String("session", string(id)), slog.Any("err", err))
		telemetry.RelayFailed("spawn")
		sink.StreamStatus(relay.Status{State: relay.Failed, Message: "No valid RTMP URLs provided", Err: err})
		return err
	}

	s := m.newSession(ctx, id, sink)
	if prev := m.reg.Swap(id, s); prev != nil {
		m.logger.Info("restarting session", slog.String("session", string(id)))
	}
	telemetry.SetSessionsActive(m.reg.Len())
	m.logger.Info("session started", slog.String("session", string(id)), slog.Any("destinations", dst.Redacted()), slog.Bool("chat", cred != nil))
	return s.start(dst, cred, m)
}

// Ingest forwards chunk to the session's relay. Unknown ids are ignored.
func (m *Manager) Ingest(id ID, chunk []byte) {
	if s, ok := m.reg.Get(id); ok {
		s.Ingest(chunk)
	}
}

// Stop tears down and unregisters id. Unknown ids are ignored.
func (m *Manager) Stop(id ID) {
	s := m.reg.Remove(id)
	if s == nil {
		return
	}
	s.Stop()
	m.reg.Drained(id, s)
	telemetry.SetSessionsActive(m.reg.Len())
}

// OnTransportDisconnect is Stop for a closed connection.
func (m *Manager) OnTransportDisconnect(id ID) {
	m.Stop(id)
}

// Lookup returns the session registered under id.
func (m *Manager) Lookup(id ID) (*Session, bool) { return m.reg.Get(id) }

// Len returns the number of registered sessions.
func (m *Manager) Len() int { return m.reg.Len() }

// StopAll tears down every session, for shutdown.
func (m *Manager) StopAll() {
	for _, s := range m.reg.Drain() {
		s.Stop()
	}
	telemetry.SetSessionsActive(0)
}

// Package session ties one operator connection to its relay and chat subsystems.
//
// A Manager owns the Registry. Start validates destinations, replaces any session already
// registered under the same ID, then starts the relay supervisor and, when a credential is
// available, the chat subsystem. Stop and OnTransportDisconnect tear everything down and are safe
// to repeat.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/onnwee/streamrelay/chat"
	"github.com/onnwee/streamrelay/relay"
	"github.com/onnwee/streamrelay/telemetry"
	"github.com/onnwee/streamrelay/youtubeapi"
)

// ID identifies a session; the transport supplies it.
type ID string

// Sink receives everything a session reports. Implementations must be safe for concurrent use:
// relay, chat and Twitch output arrive from different goroutines.
type Sink interface {
	StreamStatus(st relay.Status)
	chat.Listener
}

// Session is one operator's relay plus chat.
type Session struct {
	id     ID
	sink   Sink
	relay  *relay.Supervisor
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex // serializes start and Stop
	stopped  atomic.Bool
	released bool
	prev     *Session // session this one replaced; released before anything starts
	chat     *chat.Subsystem
	twitch   *chat.TwitchSource
}

// ID returns the session id.
func (s *Session) ID() ID { return s.id }

// Relay returns the session's supervisor.
func (s *Session) Relay() *relay.Supervisor { return s.relay }

// Chat returns the YouTube chat subsystem, nil when chat is disabled.
func (s *Session) Chat() *chat.Subsystem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat
}

func (m *Manager) newSession(ctx context.Context, id ID, sink Sink) *Session {
	logger := m.opts.Logger.With(slog.String("session", string(id)))
	ctx, cancel := context.WithCancel(telemetry.WithSession(context.WithoutCancel(ctx), string(id)))
	s := &Session{id: id, sink: sink, logger: logger, ctx: ctx, cancel: cancel}
	s.relay = relay.NewSupervisor(relay.Options{
		Launcher:    m.opts.Launcher,
		Encoding:    m.opts.Encoding,
		StopTimeout: m.opts.StopTimeout,
		Logger:      logger,
	}, func(st relay.Status) {
		if st.State == relay.Failed {
			logger.Warn("relay failed", slog.String("component", "session"), slog.String("reason", st.Message))
		}
		sink.StreamStatus(st)
	})
	return s
}

func (s *Session) start(dst relay.Destinations, cred *youtubeapi.Credential, m *Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releasePrev()
	if s.stopped.Load() {
		return nil
	}

	relayErr := s.relay.Start(s.ctx, dst)

	switch {
	case cred == nil:
		s.logger.Info("no youtube credential; chat disabled", slog.String("component", "chat"))
	case m.opts.NewPlatform == nil:
		s.logger.Debug("no chat platform configured", slog.String("component", "chat"))
	default:
		p, err := m.opts.NewPlatform(s.ctx, cred)
		if err != nil {
			s.logger.Warn("chat platform unavailable", slog.String("component", "chat"), slog.Any("err", err))
			break
		}
		chatOpts := m.opts.Chat
		chatOpts.Logger = s.logger
		s.chat = chat.NewSubsystem(p, s.sink, chatOpts)
		s.chat.Start(s.ctx)
	}

	if m.opts.Twitch.Enabled() {
		s.twitch = chat.NewTwitchSource(m.opts.Twitch, s.sink, s.logger)
		s.twitch.Start(s.ctx)
	}
	return relayErr
}

// Ingest forwards a media chunk to the relay; dropped once the session is stopped.
func (s *Session) Ingest(chunk []byte) {
	if s.stopped.Load() {
		return
	}
	s.relay.Ingest(chunk)
}

// Stop releases the relay process, halts chat timers and cancels the session context. Safe to
// call repeatedly; a concurrent second call returns once the first has finished.
func (s *Session) Stop() {
	s.stopped.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	s.cancel()
	if s.chat != nil {
		s.chat.Stop()
	}
	if s.twitch != nil {
		s.twitch.Stop()
	}
	s.relay.Stop()
	s.releasePrev()
	s.logger.Info("session stopped", slog.String("component", "session"))
}

// releasePrev stops the replaced session, so a restart never overlaps two relays even when
// several Starts for one ID race. Callers hold s.mu; locks are always taken newest to oldest.
func (s *Session) releasePrev() {
	if p := s.prev; p != nil {
		s.prev = nil
		p.Stop()
	}
}

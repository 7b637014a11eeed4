package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onnwee/streamrelay/telemetry"
)

// Options configures a Subsystem. Zero values fall back to 10 attempts, 5s delays and the real
// clock.
type Options struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Subsystem is the Locating → Polling state machine for one session.
type Subsystem struct {
	platform Platform
	listener Listener
	opts     Options

	mu     sync.Mutex
	state  PollState
	poller *Poller
	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
}

// NewSubsystem returns a subsystem that reports to l once started.
func NewSubsystem(p Platform, l Listener, opts Options) *Subsystem {
	return &Subsystem{platform: p, listener: l, opts: opts.withDefaults(), state: Locating}
}

// Start launches the state machine. It returns immediately; calling it twice is a no-op.
func (s *Subsystem) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop cancels any pending timer or request and waits for the state machine to exit. No Listener
// call is made after Stop returns. Safe to call repeatedly and before Start.
func (s *Subsystem) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		cancel, done := s.cancel, s.done
		if done == nil {
			// Never started; make a later Start a no-op.
			s.done = make(chan struct{})
			close(s.done)
		}
		s.mu.Unlock()
		if cancel != nil {
			cancel()
			<-done
		}
	})
}

// State returns the current phase.
func (s *Subsystem) State() PollState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor returns the poller's cursor, empty while Locating.
func (s *Subsystem) Cursor() Cursor {
	s.mu.Lock()
	p := s.poller
	s.mu.Unlock()
	if p == nil {
		return ""
	}
	return p.Cursor()
}

func (s *Subsystem) run(ctx context.Context) {
	defer close(s.done)
	log := s.opts.Logger.With(slog.String("component", "chat"), slog.String("platform", s.platform.Name()))

	s.setState(ctx, Locating, nil)
	loc := NewLocator(s.platform, s.opts.Clock, s.opts.MaxAttempts, s.opts.RetryDelay, log)
	b, err := loc.Run(ctx)
	if err != nil {
		if errors.Is(err, ErrChatExhausted) {
			s.setState(ctx, Exhausted, err)
		}
		return
	}

	p := NewPoller(s.platform, b.ChatID)
	s.mu.Lock()
	s.poller = p
	s.mu.Unlock()
	s.setState(ctx, Polling, nil)

	for {
		t := s.opts.Clock.NewTimer(s.opts.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.Chan():
		}
		msgs, err := p.PollOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			class := Classify(err)
			telemetry.ChatFetchFailed(class.String())
			log.Warn("chat fetch failed; keeping cursor", slog.String("class", class.String()), slog.Any("err", err))
			continue
		}
		s.listener.ChatMessages(msgs)
	}
}

func (s *Subsystem) setState(ctx context.Context, st PollState, err error) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if ctx.Err() == nil {
		s.listener.ChatState(st, err)
	}
}

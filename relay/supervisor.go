package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/onnwee/streamrelay/telemetry"
)

// Supervisor owns at most one transcoder process for a session.
//
// Start, Stop and Ingest may be called from different goroutines. Start, Stop and exit handling
// are serialized against each other; Ingest only writes to the process current at call time.
// Exit of the process is observed by a watcher goroutine, which reports Stopped or Failed unless
// Stop or a restart already released that process.
type Supervisor struct {
	launcher    Launcher
	encoding    Encoding
	stopTimeout time.Duration
	report      Reporter
	logger      *slog.Logger

	opMu    sync.Mutex // serializes Start/Stop
	writeMu sync.Mutex // keeps chunks from concurrent Ingest calls whole

	mu    sync.Mutex
	cur   *running
	state State
}

type running struct {
	proc Process
	done chan struct{}
	err  error
}

// Options configures a Supervisor. Zero values fall back to ExecLauncher{}, DefaultEncoding and a
// five-second stop timeout.
type Options struct {
	Launcher    Launcher
	Encoding    *Encoding
	StopTimeout time.Duration
	Logger      *slog.Logger
}

// NewSupervisor returns an idle supervisor reporting transitions to report.
func NewSupervisor(opts Options, report Reporter) *Supervisor {
	s := &Supervisor{
		launcher:    opts.Launcher,
		encoding:    DefaultEncoding(),
		stopTimeout: opts.StopTimeout,
		report:      report,
		logger:      opts.Logger,
		state:       Idle,
	}
	if s.launcher == nil {
		s.launcher = ExecLauncher{}
	}
	if opts.Encoding != nil {
		s.encoding = *opts.Encoding
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = 5 * time.Second
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.report == nil {
		s.report = func(Status) {}
	}
	return s
}

// State returns the last reported state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether a process is currently attached.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Start terminates any running process and spawns a new one fanning out to dst.
func (s *Supervisor) Start(ctx context.Context, dst Destinations) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if prev := s.detach(); prev != nil {
		s.logger.Info("relay restart: stopping previous process", slog.String("component", "relay"))
		s.terminate(prev)
	}

	if dst.Len() == 0 {
		err := fmt.Errorf("%w: %w", ErrSpawn, ErrInvalidDestinations)
		s.transition(Status{State: Failed, Message: "No valid RTMP URLs provided", Err: err})
		telemetry.RelayFailed("spawn")
		return err
	}

	s.transition(Status{State: Starting, Message: fmt.Sprintf("Starting relay to %d destination(s)", dst.Len())})
	proc, err := s.launcher.Launch(ctx, BuildArgs(dst, s.encoding))
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSpawn, err)
		s.transition(Status{State: Failed, Message: err.Error(), Err: err})
		telemetry.RelayFailed("spawn")
		return err
	}

	r := &running{proc: proc, done: make(chan struct{})}
	s.mu.Lock()
	s.cur = r
	s.mu.Unlock()
	telemetry.RelayStarted()
	s.logger.Info("relay active", slog.String("component", "relay"), slog.Any("destinations", dst.Redacted()))
	s.transition(Status{State: Active, Message: fmt.Sprintf("Streaming to %d destination(s)", dst.Len())})

	go s.watch(r)
	return nil
}

// Ingest writes chunk to the current process. Chunks are dropped when no process is attached,
// and a write to a process that already died is treated as already stopped.
func (s *Supervisor) Ingest(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := r.proc.Stdin().Write(chunk); err != nil {
		s.logger.Debug("relay input closed; dropping chunk", slog.String("component", "relay"), slog.Any("err", err))
		return
	}
	telemetry.AddIngestedBytes(len(chunk))
}

// Stop closes the process input, interrupts it and waits for exit. Safe to call repeatedly.
func (s *Supervisor) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	r := s.detach()
	if r == nil {
		return
	}
	s.terminate(r)
	s.transition(Status{State: Stopped, Message: "Stream ended"})
}

// detach releases the current process handle so the watcher ignores its exit.
func (s *Supervisor) detach() *running {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.cur
	s.cur = nil
	return r
}

func (s *Supervisor) terminate(r *running) {
	_ = r.proc.Stdin().Close()
	if err := r.proc.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Debug("relay interrupt failed", slog.String("component", "relay"), slog.Any("err", err))
	}
	t := time.NewTimer(s.stopTimeout)
	defer t.Stop()
	select {
	case <-r.done:
	case <-t.C:
		s.logger.Warn("relay did not exit after interrupt; killing", slog.String("component", "relay"), slog.Duration("timeout", s.stopTimeout))
		_ = r.proc.Kill()
		<-r.done
	}
}

func (s *Supervisor) watch(r *running) {
	r.err = r.proc.Wait()
	close(r.done)

	// Start and Stop only wait on r.done, which is already closed, so taking opMu here cannot
	// deadlock and keeps this report ordered with theirs.
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	if s.cur != r {
		s.mu.Unlock()
		return
	}
	s.cur = nil
	s.mu.Unlock()

	if r.err != nil {
		err := fmt.Errorf("%w: %w", ErrRuntime, r.err)
		s.logger.Warn("relay exited", slog.String("component", "relay"), slog.Any("err", r.err))
		telemetry.RelayFailed("runtime")
		s.transition(Status{State: Failed, Message: err.Error(), Err: err})
		return
	}
	s.logger.Info("relay exited cleanly", slog.String("component", "relay"))
	s.transition(Status{State: Stopped, Message: "Stream ended"})
}

func (s *Supervisor) transition(st Status) {
	s.mu.Lock()
	s.state = st.State
	s.mu.Unlock()
	s.report(st)
}

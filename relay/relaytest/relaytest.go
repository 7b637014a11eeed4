// Package relaytest provides an in-memory relay.Launcher for tests that must not depend on an
// ffmpeg binary.
package relaytest

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/onnwee/streamrelay/relay"
)

// Launcher records every launch and tracks how many fake processes are alive at once.
type Launcher struct {
	mu      sync.Mutex
	procs   []*Process
	live    int
	maxLive int
	failErr error
	ignore  bool
	gate    chan struct{}
	waiting int
}

// Hold makes subsequent Launch calls block until the returned release func is called.
func (l *Launcher) Hold() (release func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	gate := make(chan struct{})
	l.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.gate == gate {
				l.gate = nil
			}
			l.mu.Unlock()
			close(gate)
		})
	}
}

// Waiting returns the number of Launch calls blocked by Hold.
func (l *Launcher) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiting
}

// FailNext makes the next Launch return err.
func (l *Launcher) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failErr = err
}

// IgnoreInterrupt makes subsequently launched processes ignore SIGINT so only Kill ends them.
func (l *Launcher) IgnoreInterrupt() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ignore = true
}

// Launch implements relay.Launcher.
func (l *Launcher) Launch(_ context.Context, args []string) (relay.Process, error) {
	l.mu.Lock()
	if gate := l.gate; gate != nil {
		l.waiting++
		l.mu.Unlock()
		<-gate
		l.mu.Lock()
		l.waiting--
	}
	defer l.mu.Unlock()
	if l.failErr != nil {
		err := l.failErr
		l.failErr = nil
		return nil, err
	}
	p := &Process{
		args:            append([]string(nil), args...),
		exited:          make(chan struct{}),
		ignoreInterrupt: l.ignore,
		onExit:          l.exited,
	}
	l.procs = append(l.procs, p)
	l.live++
	if l.live > l.maxLive {
		l.maxLive = l.live
	}
	return p, nil
}

func (l *Launcher) exited() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.live--
}

// Launches returns the number of processes started.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

// Process returns the i-th launched process.
func (l *Launcher) Process(i int) *Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[i]
}

// Live returns the number of processes that have not exited.
func (l *Launcher) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

// MaxLive returns the highest number of simultaneously alive processes observed.
func (l *Launcher) MaxLive() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxLive
}

// Process is a fake transcoder; its stdin collects chunks in arrival order.
type Process struct {
	args            []string
	ignoreInterrupt bool
	onExit          func()

	mu       sync.Mutex
	chunks   [][]byte
	closed   bool
	exitErr  error
	exitOnce sync.Once
	exited   chan struct{}
	signals  []os.Signal
}

// Args returns the arguments the process was launched with.
func (p *Process) Args() []string { return p.args }

// Stdin implements relay.Process.
func (p *Process) Stdin() io.WriteCloser { return stdin{p} }

// Signal implements relay.Process; SIGINT ends the process cleanly unless ignored.
func (p *Process) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	ignore := p.ignoreInterrupt
	p.mu.Unlock()
	select {
	case <-p.exited:
		return os.ErrProcessDone
	default:
	}
	if sig == os.Interrupt && !ignore {
		p.exit(nil)
	}
	return nil
}

// Kill implements relay.Process.
func (p *Process) Kill() error {
	p.exit(errors.New("signal: killed"))
	return nil
}

// Wait implements relay.Process.
func (p *Process) Wait() error {
	<-p.exited
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Crash ends the process with err as if it died on its own.
func (p *Process) Crash(err error) { p.exit(err) }

// Exited reports whether the process has ended.
func (p *Process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// Chunks returns a copy of everything written to stdin, one entry per write.
func (p *Process) Chunks() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.chunks))
	copy(out, p.chunks)
	return out
}

// StdinClosed reports whether stdin was closed.
func (p *Process) StdinClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Signals returns the signals delivered so far.
func (p *Process) Signals() []os.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]os.Signal(nil), p.signals...)
}

func (p *Process) exit(err error) {
	p.exitOnce.Do(func() {
		p.mu.Lock()
		p.exitErr = err
		p.closed = true
		p.mu.Unlock()
		if p.onExit != nil {
			p.onExit()
		}
		close(p.exited)
	})
}

type stdin struct{ p *Process }

func (s stdin) Write(b []byte) (int, error) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.p.closed {
		return 0, io.ErrClosedPipe
	}
	s.p.chunks = append(s.p.chunks, append([]byte(nil), b...))
	return len(b), nil
}

func (s stdin) Close() error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.closed = true
	return nil
}

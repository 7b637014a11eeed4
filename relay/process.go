package relay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// Process is a running transcoder. Wait must be called exactly once.
type Process interface {
	Stdin() io.WriteCloser
	Signal(sig os.Signal) error
	Kill() error
	Wait() error
}

// Launcher starts transcoder processes. Tests substitute a fake; production uses ExecLauncher.
type Launcher interface {
	Launch(ctx context.Context, args []string) (Process, error)
}

// ExecLauncher runs the ffmpeg binary at Path.
type ExecLauncher struct {
	Path   string
	Logger *slog.Logger
}

// Launch starts ffmpeg with stdin piped and stderr forwarded line-by-line to the debug log.
// The process is not bound to ctx; the Supervisor owns termination so it can close stdin and
// send SIGINT first, letting ffmpeg flush the flv trailers.
func (l ExecLauncher) Launch(ctx context.Context, args []string) (Process, error) {
	path := l.Path
	if path == "" {
		path = "ffmpeg"
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.Command(path, args...) //nolint:gosec // G204: path comes from FFMPEG_PATH config, args are built by BuildArgs
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, err
	}
	p := &execProcess{cmd: cmd, stdin: stdin, drained: make(chan struct{})}
	go func() {
		defer close(p.drained)
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 16*1024), 256*1024)
		for sc.Scan() {
			logger.Debug("ffmpeg", slog.String("line", sc.Text()))
		}
		if err := sc.Err(); err != nil {
			logger.Debug("ffmpeg stderr not line-delimited; discarding rest", slog.Any("err", err))
		}
		// keep the pipe empty so ffmpeg never blocks on stderr
		_, _ = io.Copy(io.Discard, stderr)
	}()
	logger.Debug("ffmpeg started", slog.Int("pid", cmd.Process.Pid))
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	drained chan struct{}
}

func (p *execProcess) Stdin() io.WriteCloser      { return p.stdin }
func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }
func (p *execProcess) Kill() error                { return p.cmd.Process.Kill() }

// Wait lets the stderr reader hit EOF before reaping, as required by exec.Cmd.StderrPipe.
func (p *execProcess) Wait() error {
	<-p.drained
	return p.cmd.Wait()
}

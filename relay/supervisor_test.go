package relay_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onnwee/streamrelay/relay"
	"github.com/onnwee/streamrelay/relay/relaytest"
)

type recorder struct {
	mu  sync.Mutex
	got []relay.Status
}

func (r *recorder) report(st relay.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, st)
}

func (r *recorder) states() []relay.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]relay.State, len(r.got))
	for i, st := range r.got {
		out[i] = st.State
	}
	return out
}

func (r *recorder) last() relay.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return relay.Status{}
	}
	return r.got[len(r.got)-1]
}

func mustDestinations(t *testing.T, urls ...string) relay.Destinations {
	t.Helper()
	d, err := relay.ParseDestinations(urls)
	require.NoError(t, err)
	return d
}

func newSupervisor(l *relaytest.Launcher, rec *recorder) *relay.Supervisor {
	return relay.NewSupervisor(relay.Options{Launcher: l, StopTimeout: 200 * time.Millisecond}, rec.report)
}

func TestStartReportsActive(t *testing.T) {
	l := &relaytest.Launcher{}
	rec := &recorder{}
	s := newSupervisor(l, rec)

	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1", "rtmp://b/live/2")))

	require.Equal(t, []relay.State{relay.Starting, relay.Active}, rec.states())
	require.Equal(t, "Streaming to 2 destination(s)", rec.last().Message)
	require.Equal(t, relay.Active, s.State())
	require.True(t, s.Running())
	require.Equal(t, 1, l.Launches())
	s.Stop()
}

func TestIngestPreservesOrder(t *testing.T) {
	l := &relaytest.Launcher{}
	s := newSupervisor(l, &recorder{})
	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1")))

	for _, c := range []string{"one", "two", "three"} {
		s.Ingest([]byte(c))
	}
	s.Ingest(nil)

	chunks := l.Process(0).Chunks()
	require.Len(t, chunks, 3)
	require.Equal(t, "one", string(chunks[0]))
	require.Equal(t, "two", string(chunks[1]))
	require.Equal(t, "three", string(chunks[2]))
	s.Stop()
}

func TestIngestWithoutProcessIsDropped(t *testing.T) {
	l := &relaytest.Launcher{}
	s := newSupervisor(l, &recorder{})
	s.Ingest([]byte("early"))
	require.Equal(t, 0, l.Launches())
	require.Equal(t, relay.Idle, s.State())
}

func TestRestartTerminatesPrevious(t *testing.T) {
	l := &relaytest.Launcher{}
	rec := &recorder{}
	s := newSupervisor(l, rec)

	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1")))
	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://b/live/2")))

	require.Equal(t, 2, l.Launches())
	require.Equal(t, 1, l.MaxLive(), "two transcoders were alive at once")
	first := l.Process(0)
	require.True(t, first.Exited())
	require.True(t, first.StdinClosed())
	require.Equal(t, []os.Signal{os.Interrupt}, first.Signals())

	s.Ingest([]byte("x"))
	require.Empty(t, first.Chunks())
	require.Len(t, l.Process(1).Chunks(), 1)

	// The released process exiting must not surface as Stopped for the new one.
	require.Never(t, func() bool { return rec.last().State != relay.Active }, 100*time.Millisecond, 10*time.Millisecond)
	s.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	l := &relaytest.Launcher{}
	rec := &recorder{}
	s := newSupervisor(l, rec)
	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1")))

	s.Stop()
	s.Stop()

	require.Equal(t, []relay.State{relay.Starting, relay.Active, relay.Stopped}, rec.states())
	require.Equal(t, "Stream ended", rec.last().Message)
	require.False(t, s.Running())
	require.Equal(t, 0, l.Live())
}

func TestStopBeforeStart(t *testing.T) {
	rec := &recorder{}
	s := newSupervisor(&relaytest.Launcher{}, rec)
	s.Stop()
	require.Empty(t, rec.states())
	require.Equal(t, relay.Idle, s.State())
}

func TestCrashReportsFailed(t *testing.T) {
	l := &relaytest.Launcher{}
	rec := &recorder{}
	s := newSupervisor(l, rec)
	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1")))

	l.Process(0).Crash(errors.New("exit status 1"))

	require.Eventually(t, func() bool { return rec.last().State == relay.Failed }, time.Second, 5*time.Millisecond)
	st := rec.last()
	require.ErrorIs(t, st.Err, relay.ErrRuntime)
	require.False(t, s.Running())

	s.Ingest([]byte("after crash"))
	require.Empty(t, l.Process(0).Chunks())

	// Stop after a crash has nothing to release.
	s.Stop()
	require.Equal(t, relay.Failed, rec.last().State)
}

func TestCleanExitReportsStopped(t *testing.T) {
	l := &relaytest.Launcher{}
	rec := &recorder{}
	s := newSupervisor(l, rec)
	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1")))

	l.Process(0).Crash(nil)

	require.Eventually(t, func() bool { return rec.last().State == relay.Stopped }, time.Second, 5*time.Millisecond)
	require.NoError(t, rec.last().Err)
}

func TestSpawnFailure(t *testing.T) {
	l := &relaytest.Launcher{}
	l.FailNext(errors.New("exec: \"ffmpeg\": executable file not found in $PATH"))
	rec := &recorder{}
	s := newSupervisor(l, rec)

	err := s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1"))
	require.ErrorIs(t, err, relay.ErrSpawn)
	require.Equal(t, []relay.State{relay.Starting, relay.Failed}, rec.states())
	require.ErrorIs(t, rec.last().Err, relay.ErrSpawn)
	require.False(t, s.Running())

	// A later Start is allowed to succeed.
	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1")))
	require.Equal(t, relay.Active, s.State())
	s.Stop()
}

func TestStartWithNoDestinations(t *testing.T) {
	l := &relaytest.Launcher{}
	rec := &recorder{}
	s := newSupervisor(l, rec)

	err := s.Start(context.Background(), relay.Destinations{})
	require.ErrorIs(t, err, relay.ErrInvalidDestinations)
	require.Equal(t, []relay.State{relay.Failed}, rec.states())
	require.Equal(t, 0, l.Launches())
}

func TestStopKillsAfterTimeout(t *testing.T) {
	l := &relaytest.Launcher{}
	l.IgnoreInterrupt()
	rec := &recorder{}
	s := relay.NewSupervisor(relay.Options{Launcher: l, StopTimeout: 20 * time.Millisecond}, rec.report)
	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1")))

	s.Stop()

	p := l.Process(0)
	require.True(t, p.Exited())
	require.Equal(t, relay.Stopped, rec.last().State)
}

func TestConcurrentIngestAndStop(t *testing.T) {
	l := &relaytest.Launcher{}
	s := newSupervisor(l, &recorder{})
	require.NoError(t, s.Start(context.Background(), mustDestinations(t, "rtmp://a/live/1")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Ingest([]byte{byte(j)})
			}
		}()
	}
	s.Stop()
	wg.Wait()
	require.False(t, s.Running())
	require.Equal(t, 0, l.Live())
}

func TestExecLauncherMissingBinary(t *testing.T) {
	_, err := relay.ExecLauncher{Path: "/nonexistent/ffmpeg-binary"}.Launch(context.Background(), []string{"-version"})
	require.Error(t, err)
}

func TestExecLauncherDrainsOversizedStderr(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	// one 600 KiB stderr line overflows the scanner and then the pipe unless it is drained
	script := `head -c 614400 /dev/zero | tr '\0' x >&2; echo >&2; cat >/dev/null`
	p, err := relay.ExecLauncher{Path: sh}.Launch(context.Background(), []string{"-c", script})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_ = p.Stdin().Close()
		done <- p.Wait()
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		_ = p.Kill()
		t.Fatal("process blocked writing stderr")
	}
}

func TestReporterMayReadState(t *testing.T) {
	l := &relaytest.Launcher{}
	var sup *relay.Supervisor
	var mu sync.Mutex
	var seen []relay.State
	sup = relay.NewSupervisor(relay.Options{Launcher: l, StopTimeout: time.Second}, func(st relay.Status) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, sup.State())
	})
	dst, err := relay.ParseDestinations([]string{"rtmp://a.example/live/key"})
	require.NoError(t, err)
	require.NoError(t, sup.Start(context.Background(), dst))
	sup.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []relay.State{relay.Starting, relay.Active, relay.Stopped}, seen)
}

package relay

import "errors"

// State is the lifecycle position of a session's relay process.
type State int

const (
	Idle State = iota
	Starting
	Active
	Stopped
	Failed
)

// String returns the wire name used in stream_status events.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrSpawn wraps failures to create the ffmpeg process.
	ErrSpawn = errors.New("relay spawn failed")
	// ErrRuntime wraps an unexpected ffmpeg exit.
	ErrRuntime = errors.New("relay exited unexpectedly")
)

// Status is one reported transition.
type Status struct {
	State   State
	Message string
	Err     error
}

// Reporter receives every transition of a Supervisor, in order. It runs while the supervisor
// holds its operation lock, so it may read State but must not call Start or Stop.
type Reporter func(Status)

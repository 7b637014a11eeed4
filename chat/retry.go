package chat

import "time"

// Retry tracks a bounded, fixed-delay retry sequence. Max counts total attempts, so a Retry with
// Max 10 allows nine waits before giving up on the tenth failure.
type Retry struct {
	Max   int
	Delay time.Duration

	attempts int
	next     time.Time
}

// Fail records a failed attempt made at now. It returns how long to wait before the next attempt,
// or ok=false when no attempts remain.
func (r *Retry) Fail(now time.Time) (wait time.Duration, ok bool) {
	r.attempts++
	if r.attempts >= r.Max {
		r.next = time.Time{}
		return 0, false
	}
	r.next = now.Add(r.Delay)
	return r.Delay, true
}

// Attempts returns the number of failures recorded.
func (r *Retry) Attempts() int { return r.attempts }

// Next returns when the next attempt is due; zero once exhausted or before the first failure.
func (r *Retry) Next() time.Time { return r.next }

// Exhausted reports whether every attempt has been used.
func (r *Retry) Exhausted() bool { return r.attempts >= r.Max }

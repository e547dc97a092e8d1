package retry

import "time"

const (
	DefaultBaseDelay   = 5 * time.Second
	DefaultMaxAttempts = 3
)

// Policy describes the backoff curve and attempt ceiling applied to a
// failed refresh job. It holds no state, so the curve can be verified
// independently of the queue.
type Policy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   DefaultBaseDelay,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// NextDelay returns the delay imposed before re-running a job that has
// failed its n-th attempt (zero-based): base, 2*base, 4*base, ...
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay << uint(attempt)
}

// Exhausted reports whether a job that has executed the given number of
// times has reached its ceiling. The first attempt counts.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

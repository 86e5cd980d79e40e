package fetch

import "time"

// backoffState tracks where a retry cycle stands. Retry handling is
// sequential by nature, so it is modeled as a small explicit state machine
// instead of nested error handling.
type backoffState int

const (
	stateAttempting backoffState = iota
	stateBackoff
	stateRetrying
	stateSucceeded
	stateFailed
)

func (s backoffState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateBackoff:
		return "backoff"
	case stateRetrying:
		return "retrying"
	case stateSucceeded:
		return "succeeded"
	default:
		return "failed"
	}
}

// backoff issues exponentially growing delays: baseSleep * 2^attempt for
// attempt 0, 1, 2, ... up to maxAttempts retries.
type backoff struct {
	maxAttempts int
	baseSleep   time.Duration

	attempt int
	state   backoffState
}

func newBackoff(maxAttempts int, baseSleep time.Duration) *backoff {
	return &backoff{
		maxAttempts: maxAttempts,
		baseSleep:   baseSleep,
		state:       stateAttempting,
	}
}

// next advances the machine after a rate-limited attempt. It returns the
// delay to sleep before retrying, or ok=false when the budget is exhausted.
func (b *backoff) next() (delay time.Duration, ok bool) {
	if b.attempt >= b.maxAttempts {
		b.state = stateFailed
		return 0, false
	}

	delay = b.baseSleep << b.attempt
	b.attempt++
	b.state = stateBackoff
	return delay, true
}

// retrying marks the transition from sleeping back to issuing the request.
func (b *backoff) retrying() {
	b.state = stateRetrying
}

// succeeded marks the cycle finished successfully.
func (b *backoff) succeeded() {
	b.state = stateSucceeded
}

// attempts returns how many retries have been consumed.
func (b *backoff) attempts() int {
	return b.attempt
}

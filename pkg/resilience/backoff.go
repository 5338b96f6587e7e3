package resilience

import "time"

// Backoff computes exponential delays for bounded reconnect attempts.
type Backoff struct {
	Base        time.Duration
	MaxAttempts int
}

// NewBackoff builds a backoff policy with sane defaults.
func NewBackoff(base time.Duration, maxAttempts int) Backoff {
	if base <= 0 {
		base = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return Backoff{Base: base, MaxAttempts: maxAttempts}
}

// Delay returns the wait before the attempt-th try (1-based):
// base * 2^(attempt-1). Attempts below 1 are clamped to 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Exhausted reports whether the attempt counter has passed the budget.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt > b.MaxAttempts
}

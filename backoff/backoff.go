// Package backoff provides pluggable delay strategies for re-scheduling
// items reclaimed from a dead worker. All strategies are stateless and
// safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a reclaimed item becomes eligible
// for re-assignment.
type Strategy interface {
	// Delay returns how long to defer attempt n (1-indexed). Attempt 1
	// is the first re-assignment after the initial worker death.
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// Jitter spreads out re-assignment when a dead worker hands back a
// whole chunk at once.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// None makes reclaimed items immediately eligible again.
type None struct{}

// Delay always returns zero.
func (None) Delay(_ int) time.Duration { return 0 }

// DefaultStrategy returns the default backoff used by the engine:
// ExponentialWithJitter with 100ms initial and 10s max. Chunk
// re-dispatch is cheap relative to remote execution, so the window
// stays short.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(100*time.Millisecond, 10*time.Second)
}

package queue

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes redelivery delays for transient failures:
// exponential growth from Base, capped at Max, with full jitter so a burst
// of failing tasks does not thunder back in lockstep.
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// DefaultBackoff is the queue-layer retry curve: 30s, 1m, 2m, 4m, capped at
// the SQS visibility ceiling.
var DefaultBackoff = BackoffPolicy{
	Base:   30 * time.Second,
	Max:    maxSQSDelay,
	Factor: 2.0,
}

// Delay returns the backoff for the given attempt (1-based: the first
// failure is attempt 1). The returned value is jittered uniformly over
// (cap/2, cap].
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
		if d >= float64(p.Max) {
			break
		}
	}
	if d > float64(p.Max) || d < 0 {
		d = float64(p.Max)
	}

	// Full jitter over the upper half keeps the floor meaningful while
	// spreading redeliveries.
	half := d / 2
	return time.Duration(half + rand.Float64()*half)
}

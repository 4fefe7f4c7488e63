// Package retry computes redelivery delays.
package retry

import (
	"math/rand"
	"time"
)

type Backoff struct {
	Base time.Duration // delay of the first retry
	Max  time.Duration // cap
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second}
}

// Delay returns the wait before retry number attempt (1-based): exponential
// from Base, capped at Max, with full jitter when rng is non-nil.
func (b Backoff) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Base <= 0 {
		b.Base = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	d := b.Max
	if attempt < 32 {
		if exp := b.Base << (attempt - 1); exp > 0 && exp < b.Max {
			d = exp
		}
	}
	if rng == nil {
		return d
	}
	return time.Duration(rng.Int63n(int64(d) + 1))
}

package wsclient

import (
	"math"
	"math/rand"
	"time"
)

// Backoff yields exponentially growing reconnect delays capped at Max, with
// symmetric jitter so many clients dropped together do not redial in lockstep.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64 // fraction of the delay, 0.2 = ±20%

	attempt int
	rnd     func() float64
}

func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{
		Initial: initial,
		Max:     max,
		Factor:  2,
		Jitter:  0.2,
		rnd:     rand.Float64,
	}
}

// Next returns the delay before the next attempt and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := float64(b.Initial) * math.Pow(b.Factor, float64(b.attempt))
	if d >= float64(b.Max) {
		d = float64(b.Max)
	} else {
		b.attempt++
	}
	if b.Jitter > 0 && b.rnd != nil {
		d += d * b.Jitter * (2*b.rnd() - 1)
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d < 1 {
		d = 1
	}
	return time.Duration(d)
}

// Reset starts the schedule over from Initial.
func (b *Backoff) Reset() {
	b.attempt = 0
}

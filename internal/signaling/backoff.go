package signaling

import "time"

// Reconnect pacing: 1s, then x1.5 per failed attempt, capped at 30s.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultDelayFactor  = 1.5
)

type backoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
}

// delay returns the wait before the given zero-based attempt.
func (b backoff) delay(attempt int) time.Duration {
	d := float64(b.initial)
	for i := 0; i < attempt; i++ {
		d *= b.factor
		if d >= float64(b.max) {
			return b.max
		}
	}
	return time.Duration(d)
}

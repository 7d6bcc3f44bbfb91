package relay

import "time"

// windowLimiter allows at most limit events per sliding interval. It belongs
// to a single read loop and is not safe for concurrent use.
type windowLimiter struct {
	limit    int
	interval time.Duration
	history  []time.Time
	now      func() time.Time
}

func newWindowLimiter(limit int, interval time.Duration) *windowLimiter {
	return &windowLimiter{limit: limit, interval: interval, now: time.Now}
}

func (rl *windowLimiter) allow() bool {
	if rl == nil || rl.limit <= 0 || rl.interval <= 0 {
		return true
	}

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	fresh := rl.history[:0]
	for _, t := range rl.history {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	rl.history = fresh

	if len(fresh) >= rl.limit {
		return false
	}
	rl.history = append(rl.history, now)
	return true
}

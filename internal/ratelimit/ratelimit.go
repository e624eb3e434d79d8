package ratelimit

import (
	"sync"
	"time"
)

// Throttle lets at most one event through per interval. Events arriving
// inside the interval are dropped, not queued.
type Throttle struct {
	interval time.Duration
	now      func() time.Time
	last     time.Time
	mu       sync.Mutex
}

func NewThrottle(interval time.Duration) *Throttle {
	return NewThrottleWithClock(interval, time.Now)
}

func NewThrottleWithClock(interval time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{interval: interval, now: now}
}

func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) <= t.interval {
		return false
	}
	t.last = now
	return true
}

// Reset forgets the last emission so the next Allow passes.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
}

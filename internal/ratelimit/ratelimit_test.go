package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestThrottleFirstCallPasses(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	th := NewThrottleWithClock(30*time.Millisecond, clock.Now)

	if !th.Allow() {
		t.Fatal("first event should pass")
	}
}

func TestThrottleDropsInsideInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	th := NewThrottleWithClock(30*time.Millisecond, clock.Now)

	th.Allow()
	clock.Advance(10 * time.Millisecond)
	if th.Allow() {
		t.Error("event 10ms after the last one should be dropped")
	}
	clock.Advance(20 * time.Millisecond)
	if th.Allow() {
		t.Error("event exactly at the interval should be dropped")
	}
	clock.Advance(1 * time.Millisecond)
	if !th.Allow() {
		t.Error("event past the interval should pass")
	}
}

func TestThrottleBoundsRate(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	th := NewThrottleWithClock(30*time.Millisecond, clock.Now)

	passed := 0
	for i := 0; i < 300; i++ {
		if th.Allow() {
			passed++
		}
		clock.Advance(time.Millisecond)
	}

	// 300ms of 1ms events with a 30ms gap: one every 31ms
	if passed < 9 || passed > 10 {
		t.Errorf("Expected 9-10 events through, got %d", passed)
	}
}

func TestThrottleReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	th := NewThrottleWithClock(time.Second, clock.Now)

	th.Allow()
	th.Reset()
	if !th.Allow() {
		t.Error("Allow after Reset should pass")
	}
}

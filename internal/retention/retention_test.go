package retention

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakePruner) PruneEndedSessions(before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return f.n, f.err
}

func (f *fakePruner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestPruneNowUsesMaxAge(t *testing.T) {
	store := &fakePruner{n: 3}
	svc := New(store, Config{Interval: time.Hour, MaxAge: 2 * time.Hour}, nil)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	got := svc.PruneNow()

	assert.Equal(t, int64(3), got)
	assert.Equal(t, []time.Time{fixed.Add(-2 * time.Hour)}, store.cutoffs)
}

func TestPruneNowSwallowsErrors(t *testing.T) {
	store := &fakePruner{err: errors.New("disk full")}
	svc := New(store, DefaultConfig(), nil)

	assert.Equal(t, int64(0), svc.PruneNow())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	store := &fakePruner{}
	svc := New(store, Config{Interval: time.Hour, MaxAge: time.Minute}, nil)

	svc.Start()
	assert.Eventually(t, func() bool { return store.calls() >= 1 }, time.Second, 5*time.Millisecond)
	svc.Stop()
}

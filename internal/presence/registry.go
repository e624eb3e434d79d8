package presence

import (
	"context"
	"sync"
)

// Registry is the authoritative set of connected participants per room.
// Register is idempotent and Unregister of an unknown id is a no-op; both
// return the room's size after the change.
type Registry interface {
	Register(ctx context.Context, room, participantID string) (int, error)
	Unregister(ctx context.Context, room, participantID string) (int, error)
	Count(ctx context.Context, room string) (int, error)
	Rooms(ctx context.Context) (map[string]int, error)
}

type memoryRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

// NewMemoryRegistry keeps presence in process memory. A restart starts empty.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{rooms: make(map[string]map[string]struct{})}
}

func (m *memoryRegistry) Register(_ context.Context, room, participantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[room] = members
	}
	members[participantID] = struct{}{}
	return len(members), nil
}

func (m *memoryRegistry) Unregister(_ context.Context, room, participantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[room]
	if !ok {
		return 0, nil
	}
	delete(members, participantID)
	n := len(members)
	if n == 0 {
		delete(m.rooms, room)
	}
	return n, nil
}

func (m *memoryRegistry) Count(_ context.Context, room string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room]), nil
}

func (m *memoryRegistry) Rooms(_ context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.rooms))
	for room, members := range m.rooms {
		out[room] = len(members)
	}
	return out, nil
}

package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseRegistry(t *testing.T, reg Registry) {
	t.Helper()
	ctx := context.Background()

	n, err := reg.Register(ctx, "room-a", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = reg.Register(ctx, "room-a", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "register must be idempotent")

	n, err = reg.Register(ctx, "room-a", "p2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = reg.Register(ctx, "room-b", "p3")
	require.NoError(t, err)

	rooms, err := reg.Rooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"room-a": 2, "room-b": 1}, rooms)

	n, err = reg.Unregister(ctx, "room-a", "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = reg.Unregister(ctx, "room-a", "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = reg.Unregister(ctx, "room-b", "p3")
	require.NoError(t, err)

	n, err = reg.Count(ctx, "room-b")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rooms, err = reg.Rooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"room-a": 1}, rooms)
}

func TestMemoryRegistry(t *testing.T) {
	exerciseRegistry(t, NewMemoryRegistry())
}

func TestMemoryRegistryUnknownRoom(t *testing.T) {
	reg := NewMemoryRegistry()
	n, err := reg.Unregister(context.Background(), "nowhere", "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryRegistryConcurrency(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = reg.Register(ctx, "room", string(rune('a'+i%26)))
		}(i)
	}
	wg.Wait()

	n, err := reg.Count(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, 26, n)
}

func TestRedisRegistry(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	defer rdb.Close()

	instance := "test-" + time.Now().Format("150405.000000")
	defer rdb.Del(context.Background(), roomKey(instance, "room-a"), roomKey(instance, "room-b"), roomsKey(instance))

	exerciseRegistry(t, NewRedisRegistry(rdb, RedisOptions{Instance: instance, TTL: time.Minute}))
}

func TestCursorsLifecycle(t *testing.T) {
	c := NewCursors()

	c.Upsert("p1", Entry{X: 1, Y: 2, Color: "#f00", Name: "User p1"})
	c.Upsert("p1", Entry{X: 5, Y: 6, Color: "#f00", Name: "User p1"})
	c.Upsert("p2", Entry{X: 0, Y: 0})

	e, ok := c.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 5.0, e.X)
	assert.Equal(t, 2, c.Len())

	all := c.All()
	c.Remove("p1")
	_, ok = c.Get("p1")
	assert.False(t, ok)
	assert.Len(t, all, 2, "All must return a copy")
}

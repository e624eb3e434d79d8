package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	// Instance scopes every key to one relay process so a restarted relay
	// starts from an empty set. Defaults to a random UUID.
	Instance string

	// TTL is refreshed on every write so keys of a crashed relay expire.
	TTL time.Duration
}

type redisRegistry struct {
	rdb      redis.UniversalClient
	instance string
	ttl      time.Duration
}

func NewRedisRegistry(rdb redis.UniversalClient, opts RedisOptions) Registry {
	if opts.Instance == "" {
		opts.Instance = uuid.NewString()
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &redisRegistry{rdb: rdb, instance: opts.Instance, ttl: opts.TTL}
}

func (r *redisRegistry) Register(ctx context.Context, room, participantID string) (int, error) {
	tx := r.rdb.TxPipeline()
	tx.SAdd(ctx, roomKey(r.instance, room), participantID)
	tx.Expire(ctx, roomKey(r.instance, room), r.ttl)
	tx.SAdd(ctx, roomsKey(r.instance), room)
	tx.Expire(ctx, roomsKey(r.instance), r.ttl)
	card := tx.SCard(ctx, roomKey(r.instance, room))
	if _, err := tx.Exec(ctx); err != nil {
		return 0, fmt.Errorf("register %s in %s: %w", participantID, room, err)
	}
	return int(card.Val()), nil
}

func (r *redisRegistry) Unregister(ctx context.Context, room, participantID string) (int, error) {
	tx := r.rdb.TxPipeline()
	tx.SRem(ctx, roomKey(r.instance, room), participantID)
	card := tx.SCard(ctx, roomKey(r.instance, room))
	if _, err := tx.Exec(ctx); err != nil {
		return 0, fmt.Errorf("unregister %s from %s: %w", participantID, room, err)
	}
	n := int(card.Val())
	if n == 0 {
		if err := r.rdb.SRem(ctx, roomsKey(r.instance), room).Err(); err != nil {
			return 0, fmt.Errorf("drop empty room %s: %w", room, err)
		}
	}
	return n, nil
}

func (r *redisRegistry) Count(ctx context.Context, room string) (int, error) {
	n, err := r.rdb.SCard(ctx, roomKey(r.instance, room)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *redisRegistry) Rooms(ctx context.Context) (map[string]int, error) {
	rooms, err := r.rdb.SMembers(ctx, roomsKey(r.instance)).Result()
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return map[string]int{}, nil
	}

	pipe := r.rdb.Pipeline()
	cards := make([]*redis.IntCmd, len(rooms))
	for i, room := range rooms {
		cards[i] = pipe.SCard(ctx, roomKey(r.instance, room))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]int, len(rooms))
	for i, room := range rooms {
		if n := cards[i].Val(); n > 0 {
			out[room] = int(n)
		}
	}
	return out, nil
}

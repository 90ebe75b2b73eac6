package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis under prefixed keys with a TTL, for
// deployments where crawls migrate between hosts.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore initialises a Redis-backed checkpoint store.
func NewRedisStore(addr, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "pagewalker:checkpoint:"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Save writes the snapshot under its target key.
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.client.Set(ctx, s.prefix+snap.Target, payload, s.ttl).Err()
}

// Load reads the snapshot for the target, reporting whether one exists.
func (s *RedisStore) Load(ctx context.Context, target string) (Snapshot, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+target).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("load checkpoint: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode checkpoint: %w", err)
	}
	return snap, true, nil
}

// Remove deletes the snapshot for the target.
func (s *RedisStore) Remove(ctx context.Context, target string) error {
	return s.client.Del(ctx, s.prefix+target).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

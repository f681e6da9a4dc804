package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SnapshotStore caches fold state between refreshes. Load returns nil and no
// error when nothing is cached for the provider.
type SnapshotStore interface {
	Load(ctx context.Context, providerID uuid.UUID) (*Accumulator, error)
	Save(ctx context.Context, acc *Accumulator) error
}

const snapshotKeyPrefix = "quoting:metrics:"

// SnapshotKey is the redis key holding a provider's fold state.
func SnapshotKey(providerID uuid.UUID) string {
	return snapshotKeyPrefix + providerID.String()
}

// RedisSnapshots stores snapshots as JSON values in redis.
type RedisSnapshots struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisSnapshots wraps client. A ttl of zero keeps snapshots forever.
func NewRedisSnapshots(client redis.UniversalClient, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{client: client, ttl: ttl}
}

// NewRedisClient builds a go-redis client from a redis:// or rediss:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func (s *RedisSnapshots) Load(ctx context.Context, providerID uuid.UUID) (*Accumulator, error) {
	raw, err := s.client.Get(ctx, SnapshotKey(providerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load metrics snapshot: %w", err)
	}
	var acc Accumulator
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("decode metrics snapshot: %w", err)
	}
	return &acc, nil
}

func (s *RedisSnapshots) Save(ctx context.Context, acc *Accumulator) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode metrics snapshot: %w", err)
	}
	if err := s.client.Set(ctx, SnapshotKey(acc.ProviderID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save metrics snapshot: %w", err)
	}
	return nil
}

// MemorySnapshots keeps snapshots in process. Values are stored encoded so
// callers never share state with the cache.
type MemorySnapshots struct {
	mu    sync.RWMutex
	items map[uuid.UUID][]byte
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{items: make(map[uuid.UUID][]byte)}
}

func (s *MemorySnapshots) Load(_ context.Context, providerID uuid.UUID) (*Accumulator, error) {
	s.mu.RLock()
	raw, ok := s.items[providerID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var acc Accumulator
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *MemorySnapshots) Save(_ context.Context, acc *Accumulator) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.items[acc.ProviderID] = raw
	s.mu.Unlock()
	return nil
}

var (
	_ SnapshotStore = (*RedisSnapshots)(nil)
	_ SnapshotStore = (*MemorySnapshots)(nil)
)

package position

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Store persists open positions for crash recovery.
type Store interface {
	Save(ctx context.Context, s Snapshot) error
	Delete(ctx context.Context, key string) error
	LoadAll(ctx context.Context) ([]Snapshot, error)
}

// MemoryStore keeps snapshots in process. Used when Redis is disabled.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Snapshot)}
}

func (m *MemoryStore) Save(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[s.Key()] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *MemoryStore) LoadAll(_ context.Context) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

// RedisStore keeps one JSON snapshot per token in a Redis hash.
type RedisStore struct {
	rdb goredis.Cmdable
	key string
}

// NewRedisStore stores positions under prefix+"positions".
// prefix example "raybot:"
func NewRedisStore(rdb goredis.Cmdable, prefix string) (*RedisStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required for the position store")
	}
	if prefix == "" {
		prefix = "raybot:"
	}
	return &RedisStore{rdb: rdb, key: prefix + "positions"}, nil
}

func (r *RedisStore) Save(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal position %s: %w", s.Key(), err)
	}
	if err := r.rdb.HSet(ctx, r.key, s.Key(), data).Err(); err != nil {
		return fmt.Errorf("redis HSET %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.rdb.HDel(ctx, r.key, key).Err(); err != nil {
		return fmt.Errorf("redis HDEL %s: %w", r.key, err)
	}
	return nil
}

// LoadAll returns every stored snapshot. An undecodable entry fails the
// whole load so a corrupt record is never silently dropped.
func (r *RedisStore) LoadAll(ctx context.Context) ([]Snapshot, error) {
	raw, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %s: %w", r.key, err)
	}

	out := make([]Snapshot, 0, len(raw))
	for field, data := range raw {
		var s Snapshot
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return nil, fmt.Errorf("decode position %s: %w", field, err)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

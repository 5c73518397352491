package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// State is the persisted part of the limiter.
type State struct {
	WindowStart time.Time            `json:"window_start"`
	Count       int                  `json:"count"`
	Cooldowns   map[string]time.Time `json:"cooldowns,omitempty"`
}

// Ledger persists limiter state across restarts.
type Ledger interface {
	Save(ctx context.Context, s State) error
	// Load returns false when nothing was stored.
	Load(ctx context.Context) (State, bool, error)
}

// RedisLedger keeps the state as one JSON value that expires once neither
// the window nor any cooldown can still matter.
type RedisLedger struct {
	rdb goredis.Cmdable
	key string
	ttl time.Duration
}

// NewRedisLedger stores the ledger under prefix+"limits".
func NewRedisLedger(rdb goredis.Cmdable, prefix string, ttl time.Duration) (*RedisLedger, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required for the limit ledger")
	}
	if prefix == "" {
		prefix = "raybot:"
	}
	return &RedisLedger{rdb: rdb, key: prefix + "limits", ttl: ttl}, nil
}

func (r *RedisLedger) Save(ctx context.Context, s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal limit ledger: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisLedger) Load(ctx context.Context) (State, bool, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("redis GET %s: %w", r.key, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, false, fmt.Errorf("decode limit ledger: %w", err)
	}
	return s, true, nil
}

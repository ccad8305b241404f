package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateGuard marks OAuth state tokens as consumed so a state can complete at
// most one callback.
type StateGuard interface {
	// Consume returns true the first time a state id is seen within ttl,
	// false on replay.
	Consume(ctx context.Context, stateID string, ttl time.Duration) (bool, error)
}

const statePrefix = "oauth:state:"

// RedisStateGuard implements StateGuard backed by Redis SETNX.
type RedisStateGuard struct {
	client redis.UniversalClient
}

var _ StateGuard = (*RedisStateGuard)(nil)

// NewRedisStateGuard constructs a Redis-backed guard.
func NewRedisStateGuard(client redis.UniversalClient) *RedisStateGuard {
	return &RedisStateGuard{client: client}
}

// Consume claims the state id atomically. The key lives for the state
// token's remaining validity window only.
func (g *RedisStateGuard) Consume(ctx context.Context, stateID string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, statePrefix+stateID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("consume state: %w", err)
	}
	return ok, nil
}

package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard backs claims with SET NX, Redis's native insert-if-absent.
// Expiry rides on the key's PX TTL, so no cleanup job is needed.
type RedisGuard struct {
	client *redis.Client
}

// NewRedisGuard creates a guard over a Redis instance.
func NewRedisGuard(addr, password string, db int) *RedisGuard {
	return &RedisGuard{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Claim implements Guard.
func (g *RedisGuard) Claim(ctx context.Context, keyHash, scope string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := fmt.Sprintf("idem:%s:%s", scope, keyHash)
	ok, err := g.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming idempotency key: %w", err)
	}
	return ok, nil
}

// Close releases the Redis connection.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

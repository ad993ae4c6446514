package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/erp/reconciler/internal/infrastructure/config"
)

// RunGuard makes full-scan reconciliation runs single-flight across
// instances. Overlapping runs are still safe (all writes are conditional);
// the guard only avoids wasted duplicate work.
type RunGuard interface {
	// Acquire attempts to take the guard. Returns false when another
	// instance currently holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives the guard back. Releasing a guard held by another
	// instance is a no-op.
	Release(ctx context.Context, key string) error
}

// RedisRunGuard implements RunGuard with SETNX and a TTL. The TTL bounds
// how long a crashed holder can block subsequent runs.
type RedisRunGuard struct {
	client     *redis.Client
	keyPrefix  string
	instanceID string
}

// NewRedisClient creates a Redis client from configuration and verifies the
// connection
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRedisRunGuard creates a run guard backed by an existing Redis client
func NewRedisRunGuard(client *redis.Client) *RedisRunGuard {
	return &RedisRunGuard{
		client:     client,
		keyPrefix:  "reconcile:guard:",
		instanceID: uuid.NewString(),
	}
}

// Acquire attempts SETNX on the guard key with the given TTL
func (g *RedisRunGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.keyPrefix+key, g.instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run guard: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the key only when this instance still holds it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release removes the guard key if this instance holds it
func (g *RedisRunGuard) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, g.client, []string{g.keyPrefix + key}, g.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release run guard: %w", err)
	}
	return nil
}

var _ RunGuard = (*RedisRunGuard)(nil)

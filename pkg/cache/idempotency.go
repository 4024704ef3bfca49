// Package cache holds the Redis-backed batch idempotency guard.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stockscan/stockscan-backend/pkg/config"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Idempotency remembers batch ids that have already been claimed
type Idempotency struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewIdempotency wraps a client. A zero ttl falls back to 24h.
func NewIdempotency(client *redis.Client, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &Idempotency{client: client, ttl: ttl}
}

func batchKey(batchID string) string {
	return "batch:" + batchID
}

// Claim reports true when batchID was not seen before and is now reserved.
func (i *Idempotency) Claim(ctx context.Context, batchID string) (bool, error) {
	ok, err := i.client.SetNX(ctx, batchKey(batchID), 1, i.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim batch %s: %w", batchID, err)
	}
	return ok, nil
}

// Release drops a claim so a failed batch can be retried
func (i *Idempotency) Release(ctx context.Context, batchID string) error {
	return i.client.Del(ctx, batchKey(batchID)).Err()
}

// Health pings Redis
func (i *Idempotency) Health(ctx context.Context) error {
	return i.client.Ping(ctx).Err()
}

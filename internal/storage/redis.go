package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Backend = (*RedisBackend)(nil)

const (
	rateLimitKeyPrefix = "ratelimit:"
	dedupKeyPrefix     = "webhook:event:"
)

type RedisConfig struct {
	Client *redis.Client
}

type RedisBackend struct {
	client *redis.Client
	window slidingWindow
}

// NewRedisBackend allows ratePerSec requests per key on average, with at most
// burst of them inside one window.
func NewRedisBackend(cfg RedisConfig, ratePerSec float64, burst int) *RedisBackend {
	return &RedisBackend{
		client: cfg.Client,
		window: newSlidingWindow(ratePerSec, burst),
	}
}

func (r *RedisBackend) Allow(ctx context.Context, key string) (RateLimitResult, error) {
	return r.window.take(ctx, r.client, rateLimitKeyPrefix+key)
}

func (r *RedisBackend) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, dedupKeyPrefix+eventID, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim event: %w", err)
	}
	return ok, nil
}

func (r *RedisBackend) Commit(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, dedupKeyPrefix+eventID, time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}
	return nil
}

func (r *RedisBackend) Release(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, dedupKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to release event: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

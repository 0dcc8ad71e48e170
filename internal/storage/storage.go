package storage

import (
	"context"
	"time"
)

// Drivers for the dedup store and the rate limiter.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

// DedupStore remembers which webhook events have already been relayed.
type DedupStore interface {
	// Claim takes a lease on eventID for ttl.
	// Returns false if another delivery already holds an unexpired claim.
	Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// Commit records eventID as relayed for ttl, replacing any lease.
	Commit(ctx context.Context, eventID string, ttl time.Duration) error

	// Release drops a claim so a later redelivery is processed again.
	Release(ctx context.Context, eventID string) error
}

type Backend interface {
	RateLimiter
	DedupStore

	Close() error

	Ping(ctx context.Context) error
}

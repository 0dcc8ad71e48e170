package storage

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed ratelimit.lua
var rateLimitLua string

var rateLimitScript = redis.NewScript(rateLimitLua)

type slidingWindow struct {
	size  time.Duration
	limit int
}

// newSlidingWindow admits burst hits per burst/ratePerSec window, which averages
// out to ratePerSec and never truncates a fractional rate.
func newSlidingWindow(ratePerSec float64, burst int) slidingWindow {
	if burst < 1 {
		burst = 1
	}
	if ratePerSec <= 0 {
		return slidingWindow{size: time.Second, limit: burst}
	}
	size := time.Duration(float64(burst) / ratePerSec * float64(time.Second)).Round(time.Millisecond)
	return slidingWindow{size: max(size, time.Millisecond), limit: burst}
}

func (w slidingWindow) args() []any {
	return []any{
		w.size.Milliseconds(),
		w.limit,
		(w.size + time.Second).Milliseconds(),
	}
}

// take records one hit against key. When the window is full it reports how long
// until the oldest hit ages out.
func (w slidingWindow) take(ctx context.Context, client *redis.Client, key string) (RateLimitResult, error) {
	reply, err := rateLimitScript.Run(ctx, client, []string{key}, w.args()...).Int64Slice()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(reply) != 2 {
		return RateLimitResult{}, fmt.Errorf("rate limit script returned %d values, want 2", len(reply))
	}
	return RateLimitResult{
		Allowed:    reply[0] == 1,
		RetryAfter: time.Duration(reply[1]) * time.Millisecond,
	}, nil
}

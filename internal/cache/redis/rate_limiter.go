package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

// RateLimiter is a fixed-window counter: one INCR per request on a key that
// expires with the window.
type RateLimiter struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a RateLimiter backed by c.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), prefix: c.prefix, now: time.Now}
}

// Allow counts one request against key and reports whether it is within
// limit for the current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	k := rl.windowKey(key, window)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}

// windowKey buckets key by the start of the current window.
func (rl *RateLimiter) windowKey(key string, window time.Duration) string {
	bucket := rl.now().UnixNano() / int64(window)
	return keyOf(rl.prefix, "ratelimit", key, strconv.FormatInt(bucket, 10))
}

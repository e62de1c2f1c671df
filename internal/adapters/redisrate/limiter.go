// Package redisrate enforces request quotas in Redis so limits hold across
// all process instances.
package redisrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter per key. The first hit in a window
// creates the counter with the window TTL; subsequent hits increment it.
type Limiter struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewLimiter creates a Redis-backed rate limiter.
func NewLimiter(client redis.UniversalClient, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		client: client,
		prefix: "ratelimit:",
		logger: logger.With("component", "rate_limiter"),
	}
}

// Allow reports whether the caller identified by key is within limit for the
// current window. A Redis failure is returned to the caller; request
// middleware fails open on it so a cache outage does not take writes down.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, time.Now().UnixNano()/int64(window))

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check for %s: %w", key, err)
	}

	count := incr.Val()
	if count > int64(limit) {
		l.logger.DebugContext(ctx, "rate limit exceeded",
			"key", key, "count", count, "limit", limit)
		return false, nil
	}
	return true, nil
}

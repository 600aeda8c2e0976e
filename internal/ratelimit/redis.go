package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter whose counters live in Redis, so
// multiple service instances share one admission budget per key.
type RedisLimiter struct {
	client   *redis.Client
	capacity int
	interval time.Duration
}

// NewRedisLimiter builds a limiter admitting capacity requests per key per
// interval.
func NewRedisLimiter(client *redis.Client, capacity int, interval time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, capacity: capacity, interval: interval}
}

// Allow consumes one token for key. INCR and the window-scoped expiry run in
// one pipeline, so concurrent bursts from the same key cannot undercount.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.interval)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return incr.Val() <= int64(l.capacity), nil
}

package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisRateLimiter implements the RateLimiter interface using Redis sorted
// sets for sliding window rate limiting. The window is the only
// synchronisation point between concurrent queries targeting the same
// provider.
type redisRateLimiter struct {
	client *redis.Client
	logger *zap.Logger

	// pollFloor bounds how quickly Wait re-checks after a denial.
	pollFloor time.Duration
}

// NewRedisRateLimiter creates a new Redis-based sliding-window limiter.
func NewRedisRateLimiter(client *redis.Client, logger *zap.Logger) RateLimiter {
	return &redisRateLimiter{
		client:    client,
		logger:    logger,
		pollFloor: 25 * time.Millisecond,
	}
}

// Allow checks if a request is allowed under the rate limit using the
// sliding window algorithm. On admission the caller's timestamp is
// appended to the window.
func (r *redisRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	rateLimitKey := RateLimitPrefix + key

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, rateLimitKey, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, rateLimitKey)

	requestID := fmt.Sprintf("%d-%d", now.UnixNano(), now.Nanosecond()%1000)
	pipe.ZAdd(ctx, rateLimitKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: requestID,
	})
	pipe.Expire(ctx, rateLimitKey, window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("rate limiter pipeline failed",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Error(err))
		return false, fmt.Errorf("rate limiter pipeline failed: %w", err)
	}

	// Count before our own admission was added.
	currentCount := countCmd.Val()
	if currentCount >= int64(limit) {
		// Withdraw the admission we optimistically appended.
		r.client.ZRem(ctx, rateLimitKey, requestID)
		return false, nil
	}
	return true, nil
}

// Wait blocks until an admission is granted or the context is done. After
// a denial it sleeps until the oldest admission in the window has aged
// out, then retries.
func (r *redisRateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		allowed, err := r.Allow(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		delay := r.timeUntilSlot(ctx, key, window)
		if delay < r.pollFloor {
			delay = r.pollFloor
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// timeUntilSlot returns how long until the oldest admission in the window
// ages out.
func (r *redisRateLimiter) timeUntilSlot(ctx context.Context, key string, window time.Duration) time.Duration {
	rateLimitKey := RateLimitPrefix + key
	entries, err := r.client.ZRangeWithScores(ctx, rateLimitKey, 0, 0).Result()
	if err != nil || len(entries) == 0 {
		return r.pollFloor
	}
	oldest := time.Unix(0, int64(entries[0].Score))
	return time.Until(oldest.Add(window))
}

// Count returns the current count for a rate limit key
func (r *redisRateLimiter) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	rateLimitKey := RateLimitPrefix + key

	if err := r.client.ZRemRangeByScore(ctx, rateLimitKey, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10)).Err(); err != nil {
		return 0, fmt.Errorf("rate limiter cleanup failed: %w", err)
	}

	count, err := r.client.ZCard(ctx, rateLimitKey).Result()
	if err != nil {
		return 0, fmt.Errorf("rate limiter count failed: %w", err)
	}
	return int(count), nil
}

// Reset clears the rate limit counter for a key
func (r *redisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, RateLimitPrefix+key).Err(); err != nil {
		return fmt.Errorf("rate limiter reset failed: %w", err)
	}
	return nil
}

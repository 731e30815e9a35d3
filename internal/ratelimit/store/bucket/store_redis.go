package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tokencore/internal/ratelimit/models"
	"tokencore/pkg/platform/sentinel"
)

// RedisBucketStore is a fixed-window limiter shared by every replica. The
// first request of a window sets the key's expiry.
type RedisBucketStore struct {
	client redis.Cmdable
}

func NewRedisBucketStore(client redis.Cmdable) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("increment %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return nil, fmt.Errorf("expire %s: %w: %w", key, sentinel.ErrUnavailable, err)
		}
	}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		ttl = window
	}
	now := time.Now()
	resetAt := now.Add(ttl)

	if count > int64(limit) {
		return &models.RateLimitResult{
			Allowed:    false,
			Limit:      limit,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(now, resetAt),
		}, nil
	}
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - int(count),
		ResetAt:   resetAt,
	}, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}

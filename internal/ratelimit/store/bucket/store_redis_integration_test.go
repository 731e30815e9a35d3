//go:build integration

package bucket_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tokencore/internal/ratelimit/models"
	"tokencore/internal/ratelimit/store/bucket"
	"tokencore/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = bucket.NewRedisBucketStore(s.redis.Client)
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(context.Background()))
}

func (s *RedisBucketStoreSuite) TestWindowBudget() {
	ctx := context.Background()
	key := models.Key("caller", "0xa1")

	for i := range 2 {
		res, err := s.store.Allow(ctx, key, 2, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(1-i, res.Remaining)
	}

	res, err := s.store.Allow(ctx, key, 2, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)

	ttl, err := s.redis.Client.TTL(ctx, key).Result()
	s.Require().NoError(err)
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisBucketStoreSuite) TestExpiryOpensANewWindow() {
	ctx := context.Background()
	key := models.Key("ip", "10.0.0.1")

	_, err := s.store.Allow(ctx, key, 1, time.Second)
	s.Require().NoError(err)
	s.Eventually(func() bool {
		res, err := s.store.Allow(ctx, key, 1, time.Second)
		return err == nil && res.Allowed
	}, 5*time.Second, 200*time.Millisecond)
}

func (s *RedisBucketStoreSuite) TestReset() {
	ctx := context.Background()
	key := models.Key("caller", "0xb0")
	_, err := s.store.Allow(ctx, key, 1, time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Reset(ctx, key))
	res, err := s.store.Allow(ctx, key, 1, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"tokencore/pkg/platform/sentinel"
)

const rateKeyPrefix = "rates:"

// RedisRateSource reads quotes published by an external feeder. Each currency
// is a hash at rates:{currency}; the field is the reference index and the
// value is "rate:decimals:unix".
type RedisRateSource struct {
	client redis.Cmdable
}

func NewRedisRateSource(client redis.Cmdable) *RedisRateSource {
	return &RedisRateSource{client: client}
}

func (s *RedisRateSource) Rate(ctx context.Context, currency string, referenceIndex uint32) (Rate, error) {
	raw, err := s.client.HGet(ctx, rateKeyPrefix+currency, strconv.FormatUint(uint64(referenceIndex), 10)).Result()
	if errors.Is(err, redis.Nil) {
		return Rate{}, fmt.Errorf("rate %s/%d: %w", currency, referenceIndex, sentinel.ErrNotFound)
	}
	if err != nil {
		return Rate{}, fmt.Errorf("read rate %s/%d: %w: %w", currency, referenceIndex, sentinel.ErrUnavailable, err)
	}
	return ParseRate(raw)
}

// Put publishes a quote. Feeders and tests use it; the core only reads.
func (s *RedisRateSource) Put(ctx context.Context, currency string, referenceIndex uint32, rate Rate) error {
	if err := rate.validate(); err != nil {
		return err
	}
	field := strconv.FormatUint(uint64(referenceIndex), 10)
	if err := s.client.HSet(ctx, rateKeyPrefix+currency, field, FormatRate(rate)).Err(); err != nil {
		return fmt.Errorf("write rate %s/%d: %w", currency, referenceIndex, err)
	}
	return nil
}

// ParseRate decodes "rate:decimals:unix".
func ParseRate(raw string) (Rate, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return Rate{}, fmt.Errorf("malformed rate %q: %w", raw, ErrInvalidRate)
	}
	value, err := uint256.FromDecimal(parts[0])
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %w", ErrInvalidRate, err)
	}
	decimals, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %w", ErrInvalidRate, err)
	}
	unix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %w", ErrInvalidRate, err)
	}
	rate := Rate{Value: *value, Decimals: uint8(decimals), UpdatedAt: time.Unix(unix, 0).UTC()}
	if err := rate.validate(); err != nil {
		return Rate{}, err
	}
	return rate, nil
}

// FormatRate encodes a quote for storage.
func FormatRate(rate Rate) string {
	return rate.Value.Dec() + ":" + strconv.FormatUint(uint64(rate.Decimals), 10) + ":" + strconv.FormatInt(rate.UpdatedAt.Unix(), 10)
}

package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokencore/pkg/platform/sentinel"
)

func TestRatesProvider(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	source := NewStaticRateSource()
	source.Set("EUR", 1, Rate{Value: *uint256.NewInt(15), Decimals: 1, UpdatedAt: now.Add(-time.Minute)})
	source.Set("EUR", 2, Rate{Value: *uint256.NewInt(1), Decimals: 0, UpdatedAt: now.Add(-time.Hour)})
	provider := NewRatesProvider(source, WithMaxAge(10*time.Minute), WithRatesClock(func() time.Time { return now }))

	t.Run("converts with fixed-point rate", func(t *testing.T) {
		out, err := provider.Convert(ctx, uint256.NewInt(1222), "EUR", 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1833), out.Uint64())
	})

	t.Run("rounds down", func(t *testing.T) {
		out, err := provider.Convert(ctx, uint256.NewInt(1), "EUR", 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), out.Uint64())
	})

	t.Run("unknown currency", func(t *testing.T) {
		_, err := provider.Convert(ctx, uint256.NewInt(1), "USD", 1)
		assert.ErrorIs(t, err, ErrUnknownCurrency)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("stale rate", func(t *testing.T) {
		_, err := provider.Convert(ctx, uint256.NewInt(1), "EUR", 2)
		assert.ErrorIs(t, err, ErrStaleRate)
	})

	t.Run("no max age accepts old quotes", func(t *testing.T) {
		out, err := NewRatesProvider(source).Convert(ctx, uint256.NewInt(5), "EUR", 2)
		require.NoError(t, err)
		assert.Equal(t, uint64(5), out.Uint64())
	})

	t.Run("overflow is an error", func(t *testing.T) {
		source.Set("BIG", 1, Rate{Value: *uint256.NewInt(2), Decimals: 0, UpdatedAt: now})
		huge := new(uint256.Int).SetAllOne()
		_, err := provider.Convert(ctx, huge, "BIG", 1)
		assert.ErrorIs(t, err, ErrConversionOverflow)
	})
}

func TestParseRate(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		rate := Rate{Value: *uint256.NewInt(123456), Decimals: 4, UpdatedAt: time.Unix(1_700_000_000, 0).UTC()}
		got, err := ParseRate(FormatRate(rate))
		require.NoError(t, err)
		assert.Equal(t, rate, got)
	})

	for _, raw := range []string{"", "1:2", "x:2:3", "1:300:3", "1:2:x", "1:78:0"} {
		t.Run("rejects "+raw, func(t *testing.T) {
			_, err := ParseRate(raw)
			assert.ErrorIs(t, err, ErrInvalidRate)
		})
	}
}

package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	dErrors "tokencore/pkg/domain-errors"
	"tokencore/pkg/platform/sentinel"
)

// maxDecimals keeps 10^decimals inside 256 bits.
const maxDecimals = 77

var (
	ErrUnknownCurrency    = dErrors.New(dErrors.CodeNotFound, "no rate for currency")
	ErrStaleRate          = dErrors.New(dErrors.CodeUnavailable, "rate is stale")
	ErrConversionOverflow = dErrors.New(dErrors.CodeInvariantViolation, "converted amount overflows")
	ErrInvalidRate        = dErrors.New(dErrors.CodeInvalidInput, "invalid rate")
)

// Rate is a fixed-point quote: one unit of the source currency is worth
// Value / 10^Decimals units of the reference currency.
type Rate struct {
	Value     uint256.Int
	Decimals  uint8
	UpdatedAt time.Time
}

func (r Rate) validate() error {
	if r.Decimals > maxDecimals {
		return fmt.Errorf("decimals %d exceed %d: %w", r.Decimals, maxDecimals, ErrInvalidRate)
	}
	return nil
}

// RateSource returns the latest quote of a currency against a reference
// index. Missing quotes wrap sentinel.ErrNotFound.
type RateSource interface {
	Rate(ctx context.Context, currency string, referenceIndex uint32) (Rate, error)
}

// RatesProvider implements ports.RateOracle over a RateSource.
type RatesProvider struct {
	source RateSource
	maxAge time.Duration
	now    func() time.Time
}

type RatesOption func(*RatesProvider)

// WithMaxAge rejects quotes older than maxAge. Zero accepts any age.
func WithMaxAge(maxAge time.Duration) RatesOption {
	return func(p *RatesProvider) {
		p.maxAge = maxAge
	}
}

func WithRatesClock(now func() time.Time) RatesOption {
	return func(p *RatesProvider) {
		p.now = now
	}
}

func NewRatesProvider(source RateSource, opts ...RatesOption) *RatesProvider {
	p := &RatesProvider{source: source, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Convert returns amount × rate / 10^decimals, rounded down.
func (p *RatesProvider) Convert(ctx context.Context, amount *uint256.Int, fromCurrency string, toCurrencyIndex uint32) (*uint256.Int, error) {
	rate, err := p.source.Rate(ctx, fromCurrency, toCurrencyIndex)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrUnknownCurrency, err)
		}
		return nil, err
	}
	if err := rate.validate(); err != nil {
		return nil, err
	}
	if p.maxAge > 0 && p.now().Sub(rate.UpdatedAt) > p.maxAge {
		return nil, fmt.Errorf("rate %s/%d updated at %s: %w", fromCurrency, toCurrencyIndex, rate.UpdatedAt.Format(time.RFC3339), ErrStaleRate)
	}

	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(rate.Decimals)))
	out, overflow := new(uint256.Int).MulDivOverflow(amount, &rate.Value, scale)
	if overflow {
		return nil, ErrConversionOverflow
	}
	return out, nil
}

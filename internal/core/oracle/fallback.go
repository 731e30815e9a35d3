package oracle

import (
	"context"
	"errors"
	"log/slog"

	"tokencore/pkg/platform/circuit"
	"tokencore/pkg/platform/sentinel"
)

// FallbackRateSource reads from a primary source and remembers every quote it
// returns. Once the breaker opens on consecutive outages, failed reads are
// answered from the remembered quotes. RatesProvider still applies its max age
// to those quotes.
type FallbackRateSource struct {
	primary RateSource
	cache   *StaticRateSource
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type FallbackOption func(*FallbackRateSource)

func WithBreaker(b *circuit.Breaker) FallbackOption {
	return func(s *FallbackRateSource) {
		s.breaker = b
	}
}

func WithFallbackLogger(logger *slog.Logger) FallbackOption {
	return func(s *FallbackRateSource) {
		s.logger = logger
	}
}

func NewFallbackRateSource(primary RateSource, opts ...FallbackOption) *FallbackRateSource {
	s := &FallbackRateSource{
		primary: primary,
		cache:   NewStaticRateSource(),
		breaker: circuit.New("rates"),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FallbackRateSource) Rate(ctx context.Context, currency string, referenceIndex uint32) (Rate, error) {
	rate, err := s.primary.Rate(ctx, currency, referenceIndex)
	switch {
	case err == nil:
		s.cache.Set(currency, referenceIndex, rate)
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "rate source recovered", "breaker", s.breaker.Name())
		}
		return rate, nil
	case !errors.Is(err, sentinel.ErrUnavailable):
		return Rate{}, err
	}

	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.WarnContext(ctx, "rate source unavailable, serving cached quotes",
			"breaker", s.breaker.Name(),
			"error", err,
		)
	}
	if !useFallback {
		return Rate{}, err
	}
	cached, cacheErr := s.cache.Rate(ctx, currency, referenceIndex)
	if cacheErr != nil {
		return Rate{}, err
	}
	return cached, nil
}

// Put writes through to the primary when it accepts writes.
func (s *FallbackRateSource) Put(ctx context.Context, currency string, referenceIndex uint32, rate Rate) error {
	w, ok := s.primary.(interface {
		Put(context.Context, string, uint32, Rate) error
	})
	if !ok {
		return s.cache.Put(ctx, currency, referenceIndex, rate)
	}
	if err := w.Put(ctx, currency, referenceIndex, rate); err != nil {
		return err
	}
	s.cache.Set(currency, referenceIndex, rate)
	return nil
}

package oracle

import (
	"context"
	"fmt"
	"sync"

	"tokencore/pkg/platform/sentinel"
)

type rateKey struct {
	currency string
	index    uint32
}

// StaticRateSource serves quotes held in memory.
type StaticRateSource struct {
	mu    sync.RWMutex
	rates map[rateKey]Rate
}

func NewStaticRateSource() *StaticRateSource {
	return &StaticRateSource{rates: make(map[rateKey]Rate)}
}

// Set stores a quote.
func (s *StaticRateSource) Set(currency string, referenceIndex uint32, rate Rate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[rateKey{currency, referenceIndex}] = rate
}

func (s *StaticRateSource) Rate(_ context.Context, currency string, referenceIndex uint32) (Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.rates[rateKey{currency, referenceIndex}]
	if !ok {
		return Rate{}, fmt.Errorf("rate %s/%d: %w", currency, referenceIndex, sentinel.ErrNotFound)
	}
	return rate, nil
}

// Put is Set with the RateWriter signature shared with RedisRateSource.
func (s *StaticRateSource) Put(_ context.Context, currency string, referenceIndex uint32, rate Rate) error {
	if err := rate.validate(); err != nil {
		return err
	}
	s.Set(currency, referenceIndex, rate)
	return nil
}

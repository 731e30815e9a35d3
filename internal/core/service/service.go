// Package service is the core dispatcher. It owns the delegate registry and
// proxy bindings, gates who may call which operation, and runs every
// delegate capability inside one store transaction.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"tokencore/internal/core/evaluator"
	"tokencore/internal/core/metrics"
	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	"tokencore/internal/core/registry"
	"tokencore/pkg/requestcontext"
)

const tracerName = "tokencore/internal/core/service"

// Type aliases for shared interfaces.
type (
	StoreTx        = ports.StoreTx
	AuditPublisher = ports.AuditPublisher
)

// Service is the core: shared state plus the rule modules bound to it.
type Service struct {
	store     StoreTx
	registry  *registry.Registry
	evaluator atomic.Pointer[evaluator.Evaluator]
	address   common.Address

	// oracleMu serializes oracle replacement; readers use the evaluator.
	oracleMu sync.Mutex
	users    ports.UserRegistry
	rates    ports.RateOracle
	keys     models.LimitKeys

	clock    func(ctx context.Context) time.Time
	tracer   trace.Tracer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	auditPub AuditPublisher

	// bindMu orders delegate clears against proxy binds so a delegate is
	// never cleared while a bind to it is in flight.
	bindMu sync.Mutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPub = publisher
	}
}

// WithClock fixes the time source. By default the request time from the
// context is used.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.clock = func(context.Context) time.Time { return now() }
	}
}

// WithAddress sets the core's own address, the owner of per-core audit records.
func WithAddress(addr common.Address) Option {
	return func(s *Service) {
		s.address = addr
	}
}

// WithOracles sets the user registry and rate oracle used by evaluations.
func WithOracles(users ports.UserRegistry, rates ports.RateOracle) Option {
	return func(s *Service) {
		s.users = users
		s.rates = rates
	}
}

// WithLimitKeys overrides the class-limit vector layout.
func WithLimitKeys(keys models.LimitKeys) Option {
	return func(s *Service) {
		s.keys = keys
	}
}

// WithRegistry shares a delegate registry, e.g. one populated at startup.
func WithRegistry(r *registry.Registry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer(tracerName)
	}
}

func New(store StoreTx, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("core store is required")
	}

	svc := &Service{
		store:  store,
		keys:   models.DefaultLimitKeys(),
		clock:  requestcontext.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.registry == nil {
		svc.registry = registry.New()
	}
	if svc.tracer == nil {
		svc.tracer = otel.Tracer(tracerName)
	}

	svc.evaluator.Store(svc.newEvaluator())
	svc.metrics.SetDelegatesRegistered(len(svc.registry.IDs()))

	return svc, nil
}

func (s *Service) newEvaluator() *evaluator.Evaluator {
	return evaluator.New(s.users, s.rates,
		evaluator.WithLogger(s.logger),
		evaluator.WithLimitKeys(s.keys),
	)
}

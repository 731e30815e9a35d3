package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"tokencore/internal/core/delegate"
	"tokencore/internal/core/handler"
	coremetrics "tokencore/internal/core/metrics"
	"tokencore/internal/core/oracle"
	"tokencore/internal/core/service"
	corememory "tokencore/internal/core/store/memory"
	corepostgres "tokencore/internal/core/store/postgres"
	jwttoken "tokencore/internal/jwt_token"
	"tokencore/internal/platform/config"
	"tokencore/internal/platform/httpserver"
	"tokencore/internal/platform/kafka/producer"
	"tokencore/internal/platform/logger"
	"tokencore/internal/platform/metrics"
	platformmw "tokencore/internal/platform/middleware"
	redisclient "tokencore/internal/platform/redis"
	ratelimitmw "tokencore/internal/ratelimit/middleware"
	"tokencore/internal/ratelimit/store/bucket"
	id "tokencore/pkg/domain"
	audit "tokencore/pkg/platform/audit"
	"tokencore/pkg/platform/audit/publisher"
	auditkafka "tokencore/pkg/platform/audit/store/kafka"
	auditmemory "tokencore/pkg/platform/audit/store/memory"
	auditpostgres "tokencore/pkg/platform/audit/store/postgres"
	"tokencore/pkg/platform/circuit"
	"tokencore/pkg/platform/httputil"
	"tokencore/pkg/platform/middleware/auth"
	"tokencore/pkg/platform/middleware/metadata"
	"tokencore/pkg/platform/middleware/request"
	"tokencore/pkg/platform/middleware/requesttime"
)

const (
	auditBuffer      = 1024
	auditPartitions  = 3
	auditReplication = 1
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// closer collects shutdown hooks in reverse order of construction.
type closer []func()

func (c *closer) add(fn func()) { *c = append(*c, fn) }

func (c closer) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cleanup closer
	defer cleanup.close()

	coreAddr, err := id.ParseAddress(cfg.CoreAddress)
	if err != nil {
		return err
	}

	var (
		db        *sql.DB
		coreStore service.StoreTx = corememory.New()
		auditBase audit.Store     = auditmemory.NewInMemoryStore()
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		cleanup.add(func() { _ = db.Close() })
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		pg := corepostgres.New(db)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		events := auditpostgres.New(db)
		if err := events.Migrate(ctx); err != nil {
			return err
		}
		coreStore, auditBase = pg, events
		log.Info("using postgres storage")
	}

	auditStore := auditBase
	if len(cfg.Kafka.Brokers) > 0 {
		prod, err := producer.New(producer.Config{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: "tokencore",
			Linger:   5 * time.Millisecond,
		}, log)
		if err != nil {
			return err
		}
		cleanup.add(prod.Close)
		if err := prod.EnsureTopic(ctx, cfg.Kafka.AuditTopic, auditPartitions, auditReplication); err != nil {
			return err
		}
		auditStore = auditkafka.New(prod, cfg.Kafka.AuditTopic, auditkafka.WithReadStore(auditBase))
		log.Info("streaming audit events", "topic", cfg.Kafka.AuditTopic)
	}
	auditPub := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBuffer),
		publisher.WithLogger(log),
	)
	cleanup.add(auditPub.Close)

	static := oracle.NewStaticRateSource()
	var (
		rateSource oracle.RateSource       = static
		rateWriter handler.RateWriter      = static
		buckets    ratelimitmw.BucketStore = bucket.NewInMemoryBucketStore()
	)
	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rc != nil {
		cleanup.add(func() { _ = rc.Close() })
		source := oracle.NewFallbackRateSource(oracle.NewRedisRateSource(rc),
			oracle.WithBreaker(circuit.New("redis-rates", circuit.WithFailureThreshold(3))),
			oracle.WithFallbackLogger(log),
		)
		rateSource, rateWriter = source, source
		buckets = bucket.NewRedisBucketStore(rc)
		log.Info("reading rates from redis")
	}
	rates := oracle.NewRatesProvider(rateSource, oracle.WithMaxAge(cfg.RateMaxAge))
	users := oracle.NewMemoryUserRegistry()

	svc, err := service.New(coreStore,
		service.WithAddress(coreAddr),
		service.WithOracles(users, rates),
		service.WithLogger(log),
		service.WithMetrics(coremetrics.New(prometheus.DefaultRegisterer)),
		service.WithAuditPublisher(auditPub),
		service.WithTracerProvider(otel.GetTracerProvider()),
	)
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	coreHandler := handler.New(svc, delegate.DefaultCatalog(), log,
		handler.WithUserDirectory(users),
		handler.WithEventLister(auditPub),
		handler.WithRateWriter(rateWriter),
	)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(platformmw.Observe(log, metrics.New(prometheus.DefaultRegisterer)))
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				status["status"], status["postgres"] = "degraded", err.Error()
			}
		}
		if rc != nil {
			if err := rc.Health(r.Context()); err != nil {
				status["status"], status["redis"] = "degraded", err.Error()
			}
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))
		r.Use(ratelimitmw.New(buckets, cfg.RequestLimit.Limit, cfg.RequestLimit.Window, log).RateLimit)
		coreHandler.Register(r)
	})

	srv := httpserver.New(cfg.Addr, r, log)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting tokencore", "addr", cfg.Addr, "core", coreAddr.Hex())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

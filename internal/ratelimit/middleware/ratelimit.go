// Package middleware throttles API requests per authenticated caller.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tokencore/internal/ratelimit/models"
	id "tokencore/pkg/domain"
	"tokencore/pkg/platform/httputil"
	metadata "tokencore/pkg/platform/middleware/metadata"
	"tokencore/pkg/requestcontext"
)

// BucketStore admits requests under a key.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

type Middleware struct {
	store  BucketStore
	limit  int
	window time.Duration
	logger *slog.Logger
}

// New returns a throttle admitting limit requests per window and key. A
// non-positive limit disables throttling.
func New(store BucketStore, limit int, window time.Duration, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if limit > 0 {
		logger.Info("rate limiting enabled", "limit", limit, "window", window.String())
	}
	return &Middleware{store: store, limit: limit, window: window, logger: logger}
}

// RateLimit keys on the caller address set by authentication, falling back to
// the client IP. Store failures let the request through.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := keyFor(ctx)

		result, err := m.store.Allow(ctx, key, m.limit, m.window)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"error", err,
				"key", key,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			m.logger.WarnContext(ctx, "rate limit exceeded",
				"key", key,
				"request_id", requestcontext.RequestID(ctx),
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "too many requests, retry later",
				RetryAfter: result.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func keyFor(ctx context.Context) string {
	if caller := requestcontext.Caller(ctx); !id.IsNullAddress(caller) {
		return models.Key("caller", caller.Hex())
	}
	return models.Key("ip", metadata.GetClientIP(ctx))
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

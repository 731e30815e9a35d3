package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"tokencore/internal/ratelimit/models"
	"tokencore/internal/ratelimit/store/bucket"
	"tokencore/pkg/platform/middleware/metadata"
	"tokencore/pkg/requestcontext"
	"tokencore/pkg/testutil"
)

// RateLimitSuite runs the middleware against the in-memory bucket store.
// Justification for unit tests: keying, headers and fail-open behavior are
// HTTP concerns the store tests do not see.
type RateLimitSuite struct {
	suite.Suite
	handler http.Handler
}

func TestRateLimitSuite(t *testing.T) {
	suite.Run(t, new(RateLimitSuite))
}

func (s *RateLimitSuite) SetupTest() {
	mw := New(bucket.NewInMemoryBucketStore(), 2, time.Minute, nil)
	s.handler = metadata.ClientMetadata(mw.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
}

func (s *RateLimitSuite) call(caller common.Address) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/tokens", nil)
	if caller != (common.Address{}) {
		req = testutil.WithIdentity(req, caller, requestcontext.RoleProxy)
	}
	return testutil.DoRequest(s.handler, req)
}

func (s *RateLimitSuite) TestCallerBudget() {
	alice := common.HexToAddress("0xa1")
	bob := common.HexToAddress("0xb0")

	s.Equal(http.StatusNoContent, s.call(alice).Code)
	rec := s.call(alice)
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("2", rec.Header().Get("X-RateLimit-Limit"))
	s.Equal("0", rec.Header().Get("X-RateLimit-Remaining"))

	s.Run("third request is throttled", func() {
		rec := s.call(alice)
		s.Equal(http.StatusTooManyRequests, rec.Code)
		s.Equal("60", rec.Header().Get("Retry-After"))
		s.Equal("rate_limit_exceeded", testutil.DecodeJSON(s.T(), rec)["error"])
	})

	s.Run("other callers keep their own budget", func() {
		s.Equal(http.StatusNoContent, s.call(bob).Code)
	})
}

func (s *RateLimitSuite) TestAnonymousRequestsShareTheClientIP() {
	s.Equal(http.StatusNoContent, s.call(common.Address{}).Code)
	s.Equal(http.StatusNoContent, s.call(common.Address{}).Code)
	s.Equal(http.StatusTooManyRequests, s.call(common.Address{}).Code)
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.RateLimitResult, error) {
	return nil, errors.New("store down")
}

func (s *RateLimitSuite) TestStoreFailureLetsRequestsThrough() {
	mw := New(failingStore{}, 1, time.Minute, nil)
	h := mw.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for range 3 {
		rec := testutil.DoRequest(h, testutil.NewJSONRequest(s.T(), http.MethodGet, "/", nil))
		s.Equal(http.StatusNoContent, rec.Code)
	}
}

func (s *RateLimitSuite) TestDisabled() {
	mw := New(failingStore{}, 0, time.Minute, nil)
	h := mw.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := testutil.DoRequest(h, testutil.NewJSONRequest(s.T(), http.MethodGet, "/", nil))
	s.Equal(http.StatusNoContent, rec.Code)
	s.Empty(rec.Header().Get("X-RateLimit-Limit"))
}

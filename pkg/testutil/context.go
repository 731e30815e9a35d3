package testutil

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"tokencore/pkg/requestcontext"
)

// WithIdentity attaches what the bearer auth middleware would: the caller
// address and its role.
func WithIdentity(req *http.Request, caller common.Address, role requestcontext.Role) *http.Request {
	ctx := requestcontext.WithCaller(req.Context(), caller)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}

// WithRequestID attaches a request id as the request middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

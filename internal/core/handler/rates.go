package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"tokencore/internal/core/oracle"
	dErrors "tokencore/pkg/domain-errors"
	"tokencore/pkg/platform/httputil"
	"tokencore/pkg/requestcontext"
)

// RateWriter publishes exchange rates to the source the core reads.
type RateWriter interface {
	Put(ctx context.Context, currency string, referenceIndex uint32, rate oracle.Rate) error
}

// WithRateWriter mounts PUT /rates/{currency}/{index}.
func WithRateWriter(rates RateWriter) Option {
	return func(h *Handler) {
		h.rates = rates
	}
}

// RateRequest is the body of PUT /rates/{currency}/{index}.
type RateRequest struct {
	Value    string `json:"value"`
	Decimals uint8  `json:"decimals"`

	parsedRate oracle.Rate
}

func (r *RateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	value, err := parseAmount(r.Value)
	if err != nil {
		return err
	}
	r.parsedRate = oracle.Rate{Value: *value, Decimals: r.Decimals}
	return nil
}

// HandlePutRate handles PUT /rates/{currency}/{index}. The quote is stamped
// with the request time.
func (h *Handler) HandlePutRate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	currency := strings.TrimSpace(chi.URLParam(r, "currency"))
	if currency == "" || len(currency) > 16 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "currency must be 1 to 16 characters"))
		return
	}
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 32)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "reference index must be a 32-bit unsigned integer"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[RateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	rate := req.parsedRate
	rate.UpdatedAt = requestcontext.Now(ctx)
	if err := h.rates.Put(ctx, currency, uint32(index), rate); err != nil {
		if !dErrors.Is(err, dErrors.CodeInvalidInput) {
			err = dErrors.Wrap(err, dErrors.CodeUnavailable, "rate source unavailable")
		}
		h.fail(ctx, w, "publish rate failed", err, "currency", currency)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

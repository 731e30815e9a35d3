package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"tokencore/internal/core/ports"
	id "tokencore/pkg/domain"
	dErrors "tokencore/pkg/domain-errors"
	"tokencore/pkg/platform/httputil"
	"tokencore/pkg/requestcontext"
)

// UserDirectory is the writable side of the in-process user registry.
type UserDirectory interface {
	Register(account common.Address, user ports.User)
	Revoke(account common.Address)
	SetClassLimits(userID id.UserID, limits []uint256.Int)
	ResolveUser(ctx context.Context, account common.Address) (*ports.User, error)
}

const maxClassLimits = 64

// RegisterUserRequest is the body of PUT /users/{account}.
type RegisterUserRequest struct {
	UserID     uint64     `json:"user_id"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Suspended  bool       `json:"suspended"`
}

func (r *RegisterUserRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.UserID == 0 {
		return dErrors.New(dErrors.CodeValidation, "user_id must be positive")
	}
	if r.ValidFrom != nil && r.ValidUntil != nil && r.ValidUntil.Before(*r.ValidFrom) {
		return dErrors.New(dErrors.CodeValidation, "valid_until must not precede valid_from")
	}
	return nil
}

func (r *RegisterUserRequest) user() ports.User {
	u := ports.User{ID: id.UserID(r.UserID), Suspended: r.Suspended}
	if r.ValidFrom != nil {
		u.ValidFrom = *r.ValidFrom
	}
	if r.ValidUntil != nil {
		u.ValidUntil = *r.ValidUntil
	}
	return u
}

// ClassLimitsRequest is the body of PUT /users/{account}/limits. Limits are
// decimal strings indexed by limit key.
type ClassLimitsRequest struct {
	Limits []string `json:"limits"`

	parsedLimits []uint256.Int
}

func (r *ClassLimitsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Limits) > maxClassLimits {
		return dErrors.New(dErrors.CodeValidation, "too many class limits")
	}
	r.parsedLimits = make([]uint256.Int, len(r.Limits))
	for i, raw := range r.Limits {
		v, err := parseAmount(raw)
		if err != nil {
			return err
		}
		r.parsedLimits[i] = *v
	}
	return nil
}

// HandleRegisterUser handles PUT /users/{account}.
func (h *Handler) HandleRegisterUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := id.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RegisterUserRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.users.Register(account, req.user())
	h.logger.InfoContext(ctx, "user registered",
		"account", account.Hex(),
		"user_id", req.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeUser handles DELETE /users/{account}.
func (h *Handler) HandleRevokeUser(w http.ResponseWriter, r *http.Request) {
	account, err := id.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.users.Revoke(account)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetClassLimits handles PUT /users/{account}/limits. The limits are
// stored against the user id the account resolves to.
func (h *Handler) HandleSetClassLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := id.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClassLimitsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	user, err := h.users.ResolveUser(ctx, account)
	if err != nil {
		h.fail(ctx, w, "resolve user failed", err, "account", account.Hex())
		return
	}
	if user == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "account has no registered user"))
		return
	}
	h.users.SetClassLimits(user.ID, req.parsedLimits)
	w.WriteHeader(http.StatusNoContent)
}

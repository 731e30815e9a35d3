// Package handler exposes the core over HTTP. Authentication runs upstream;
// routes here are gated by caller role and take the caller identity from the
// request context.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"tokencore/internal/core/delegate"
	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	"tokencore/internal/core/registry"
	"tokencore/internal/core/service"
	id "tokencore/pkg/domain"
	dErrors "tokencore/pkg/domain-errors"
	audit "tokencore/pkg/platform/audit"
	"tokencore/pkg/platform/httputil"
	"tokencore/pkg/platform/middleware/auth"
	"tokencore/pkg/requestcontext"
)

// Service defines the core operations served over HTTP.
type Service interface {
	DefineDelegate(ctx context.Context, delegateID id.DelegateID, impl delegate.Delegate, scopes []id.ScopeID) error
	Delegates() []registry.Binding
	DefineOracles(ctx context.Context, users ports.UserRegistry, rates ports.RateOracle, keys models.LimitKeys) error
	LimitKeys() models.LimitKeys
	DefineProxy(ctx context.Context, proxy common.Address, delegateID id.DelegateID, opts ...service.ProxyOption) error
	RemoveProxy(ctx context.Context, proxy common.Address) error

	DefineAuditConfiguration(ctx context.Context, scope id.ScopeID, mode models.AuditMode, currencyIndex uint32, storage models.StorageScope, dataMask, limitMask []bool) error
	DefineAuditTriggers(ctx context.Context, scope id.ScopeID, accounts []common.Address, senders, receivers, excluded []bool) error
	AuditConfiguration(ctx context.Context, scope id.ScopeID) (*models.AuditConfiguration, error)
	AuditRecord(ctx context.Context, scope id.ScopeID, user id.UserID) (*models.AuditRecord, bool, error)
	TokenAuditRecord(ctx context.Context, proxy common.Address, scope id.ScopeID, user id.UserID) (*models.AuditRecord, bool, error)

	Mint(ctx context.Context, caller, proxy, to common.Address, amount *uint256.Int) error
	Burn(ctx context.Context, caller, proxy, from common.Address, amount *uint256.Int) error
	Approve(ctx context.Context, caller, proxy, owner, spender common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, caller, proxy, from, to common.Address, amount *uint256.Int) (models.ResultCode, error)
	TransferFrom(ctx context.Context, caller, proxy, spender, from, to common.Address, amount *uint256.Int) (models.ResultCode, error)
	CanTransfer(ctx context.Context, proxy, from, to common.Address, amount *uint256.Int) (models.ResultCode, error)

	BalanceOf(ctx context.Context, proxy, account common.Address) (*uint256.Int, error)
	TotalSupply(ctx context.Context, proxy common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, proxy, owner, spender common.Address) (*uint256.Int, error)
}

// Handler wires core endpoints to the core service.
type Handler struct {
	service Service
	catalog *delegate.Catalog
	users   UserDirectory
	events  EventLister
	rates   RateWriter
	logger  *slog.Logger
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// EventLister reads recorded audit events.
type EventLister interface {
	List(ctx context.Context, token string) ([]audit.Event, error)
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithUserDirectory mounts the user registry endpoints backed by users.
func WithUserDirectory(users UserDirectory) Option {
	return func(h *Handler) {
		h.users = users
	}
}

// WithEventLister mounts GET /tokens/{token}/events and GET /audit/events.
func WithEventLister(events EventLister) Option {
	return func(h *Handler) {
		h.events = events
	}
}

// New constructs a core handler. catalog resolves delegate kinds named in
// PUT /delegates/{id}.
func New(service Service, catalog *delegate.Catalog, logger *slog.Logger, opts ...Option) *Handler {
	if catalog == nil {
		catalog = delegate.DefaultCatalog()
	}
	h := &Handler{
		service: service,
		catalog: catalog,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the core endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.logger, requestcontext.RoleOperator))
		r.Get("/delegates", h.HandleListDelegates)
		r.Put("/delegates/{id}", h.HandleDefineDelegate)
		r.Delete("/delegates/{id}", h.HandleClearDelegate)
		r.Put("/proxies/{address}", h.HandleDefineProxy)
		r.Delete("/proxies/{address}", h.HandleRemoveProxy)
		r.Put("/audit/scopes/{scope}", h.HandleDefineAuditConfiguration)
		r.Post("/audit/scopes/{scope}/triggers", h.HandleDefineAuditTriggers)
		r.Get("/oracles/limit-keys", h.HandleGetLimitKeys)
		r.Put("/oracles/limit-keys", h.HandlePutLimitKeys)
		r.Post("/tokens/{token}/mint", h.HandleMint)
		r.Post("/tokens/{token}/burn", h.HandleBurn)
		if h.users != nil {
			r.Put("/users/{account}", h.HandleRegisterUser)
			r.Delete("/users/{account}", h.HandleRevokeUser)
			r.Put("/users/{account}/limits", h.HandleSetClassLimits)
		}
		if h.rates != nil {
			r.Put("/rates/{currency}/{index}", h.HandlePutRate)
		}
		if h.events != nil {
			r.Get("/tokens/{token}/events", h.HandleListEvents)
			r.Get("/audit/events", h.HandleRecentEvents)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.logger, requestcontext.RoleProxy))
		r.Post("/tokens/{token}/transfer", h.HandleTransfer)
		r.Post("/tokens/{token}/transfer-from", h.HandleTransferFrom)
		r.Post("/tokens/{token}/approve", h.HandleApprove)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(h.logger, requestcontext.RoleOperator, requestcontext.RoleProxy))
		r.Get("/tokens/{token}/can-transfer", h.HandleCanTransfer)
		r.Get("/tokens/{token}/balances/{account}", h.HandleBalance)
		r.Get("/tokens/{token}/supply", h.HandleSupply)
		r.Get("/tokens/{token}/allowances/{owner}/{spender}", h.HandleAllowance)
		r.Get("/audit/scopes/{scope}", h.HandleGetAuditConfiguration)
		r.Get("/audit/scopes/{scope}/records/{user}", h.HandleAuditRecord)
	})
}

// =============================================================================
// Registry
// =============================================================================

// HandleListDelegates handles GET /delegates.
func (h *Handler) HandleListDelegates(w http.ResponseWriter, r *http.Request) {
	bindings := h.service.Delegates()
	out := make([]DelegateResponse, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, toDelegate(b))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleDefineDelegate handles PUT /delegates/{id}.
func (h *Handler) HandleDefineDelegate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	delegateID, err := id.ParseDelegateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DefineDelegateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	impl, ok := h.catalog.Lookup(req.Kind)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("unknown delegate kind %q, expected one of: %s", req.Kind, strings.Join(h.catalog.Kinds(), ", "))))
		return
	}

	if err := h.service.DefineDelegate(ctx, delegateID, impl, req.ParsedScopes()); err != nil {
		h.fail(ctx, w, "define delegate failed", err, "delegate_id", delegateID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DelegateResponse{
		ID:     uint64(delegateID),
		Kind:   impl.Kind(),
		Scopes: req.Scopes,
	})
}

// HandleClearDelegate handles DELETE /delegates/{id}.
func (h *Handler) HandleClearDelegate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	delegateID, err := id.ParseDelegateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DefineDelegate(ctx, delegateID, nil, nil); err != nil {
		h.fail(ctx, w, "clear delegate failed", err, "delegate_id", delegateID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDefineProxy handles PUT /proxies/{address}.
func (h *Handler) HandleDefineProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	proxy, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DefineProxyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	delegateID := id.DelegateID(req.DelegateID)
	if err := h.service.DefineProxy(ctx, proxy, delegateID, service.WithCurrency(req.Currency)); err != nil {
		h.fail(ctx, w, "define proxy failed", err, "token", proxy.Hex())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveProxy handles DELETE /proxies/{address}.
func (h *Handler) HandleRemoveProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveProxy(ctx, proxy); err != nil {
		h.fail(ctx, w, "remove proxy failed", err, "token", proxy.Hex())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Audit configuration
// =============================================================================

// HandleDefineAuditConfiguration handles PUT /audit/scopes/{scope}.
func (h *Handler) HandleDefineAuditConfiguration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	scope, err := id.ParseScopeID(chi.URLParam(r, "scope"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AuditConfigurationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	err = h.service.DefineAuditConfiguration(ctx, scope, req.ParsedMode(), req.CurrencyIndex, req.ParsedStorage(), req.DataMask, req.LimitMask)
	if err != nil {
		h.fail(ctx, w, "define audit configuration failed", err, "scope", scope.String())
		return
	}
	cfg, err := h.service.AuditConfiguration(ctx, scope)
	if err != nil {
		h.fail(ctx, w, "read audit configuration failed", err, "scope", scope.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditConfiguration(cfg))
}

// HandleGetAuditConfiguration handles GET /audit/scopes/{scope}.
func (h *Handler) HandleGetAuditConfiguration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, err := id.ParseScopeID(chi.URLParam(r, "scope"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cfg, err := h.service.AuditConfiguration(ctx, scope)
	if err != nil {
		h.fail(ctx, w, "read audit configuration failed", err, "scope", scope.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditConfiguration(cfg))
}

// HandleDefineAuditTriggers handles POST /audit/scopes/{scope}/triggers.
func (h *Handler) HandleDefineAuditTriggers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	scope, err := id.ParseScopeID(chi.URLParam(r, "scope"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AuditTriggersRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.DefineAuditTriggers(ctx, scope, req.ParsedAccounts(), req.Senders, req.Receivers, req.Excluded); err != nil {
		h.fail(ctx, w, "define audit triggers failed", err, "scope", scope.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAuditRecord handles GET /audit/scopes/{scope}/records/{user}. The
// optional token query parameter reads a per-token record.
func (h *Handler) HandleAuditRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, err := id.ParseScopeID(chi.URLParam(r, "scope"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	user, err := id.ParseUserID(chi.URLParam(r, "user"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var (
		rec      *models.AuditRecord
		recorded bool
	)
	if raw := r.URL.Query().Get("token"); raw != "" {
		proxy, perr := id.ParseAddress(raw)
		if perr != nil {
			httputil.WriteError(w, perr)
			return
		}
		rec, recorded, err = h.service.TokenAuditRecord(ctx, proxy, scope, user)
	} else {
		rec, recorded, err = h.service.AuditRecord(ctx, scope, user)
	}
	if err != nil {
		h.fail(ctx, w, "read audit record failed", err, "scope", scope.String(), "user", user.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditRecord(uint64(scope), uint64(user), rec, recorded))
}

// =============================================================================
// Token operations
// =============================================================================

// HandleMint handles POST /tokens/{token}/mint.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[MintRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.Mint(ctx, requestcontext.Caller(ctx), proxy, req.parsedTo, req.parsedAmount); err != nil {
		h.fail(ctx, w, "mint failed", err, "token", proxy.Hex())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult(models.ResultOK))
}

// HandleBurn handles POST /tokens/{token}/burn.
func (h *Handler) HandleBurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[BurnRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.Burn(ctx, requestcontext.Caller(ctx), proxy, req.parsedFrom, req.parsedAmount); err != nil {
		h.fail(ctx, w, "burn failed", err, "token", proxy.Hex())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult(models.ResultOK))
}

// HandleApprove handles POST /tokens/{token}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ApproveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	err := h.service.Approve(ctx, requestcontext.Caller(ctx), proxy, req.parsedOwner, req.parsedSpender, req.parsedAmount)
	if err != nil {
		h.fail(ctx, w, "approve failed", err, "token", proxy.Hex())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult(models.ResultOK))
}

// HandleTransfer handles POST /tokens/{token}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	code, err := h.service.Transfer(ctx, requestcontext.Caller(ctx), proxy, req.parsedFrom, req.parsedTo, req.parsedAmount)
	if err != nil {
		h.fail(ctx, w, "transfer failed", err, "token", proxy.Hex())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult(code))
}

// HandleTransferFrom handles POST /tokens/{token}/transfer-from.
func (h *Handler) HandleTransferFrom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if req.Spender == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "spender is required"))
		return
	}
	code, err := h.service.TransferFrom(ctx, requestcontext.Caller(ctx), proxy, req.parsedSpender, req.parsedFrom, req.parsedTo, req.parsedAmount)
	if err != nil {
		h.fail(ctx, w, "transfer from failed", err, "token", proxy.Hex())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult(code))
}

// =============================================================================
// Reads
// =============================================================================

// HandleCanTransfer handles GET /tokens/{token}/can-transfer?from=&to=&amount=.
// A denial is a successful read: the code is the answer.
func (h *Handler) HandleCanTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := parseAccount("from", q.Get("from"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	to, err := parseAccount("to", q.Get("to"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := parseAmount(q.Get("amount"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	code, err := h.service.CanTransfer(ctx, proxy, from, to, amount)
	if err != nil {
		h.fail(ctx, w, "can transfer failed", err, "token", proxy.Hex())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResult(code))
}

// HandleBalance handles GET /tokens/{token}/balances/{account}.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	account, err := id.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.service.BalanceOf(ctx, proxy, account)
	if err != nil {
		h.fail(ctx, w, "balance read failed", err, "token", proxy.Hex())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAmount(proxy, balance))
}

// HandleSupply handles GET /tokens/{token}/supply.
func (h *Handler) HandleSupply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	supply, err := h.service.TotalSupply(ctx, proxy)
	if err != nil {
		h.fail(ctx, w, "supply read failed", err, "token", proxy.Hex())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAmount(proxy, supply))
}

// HandleAllowance handles GET /tokens/{token}/allowances/{owner}/{spender}.
func (h *Handler) HandleAllowance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	owner, err := id.ParseAddress(chi.URLParam(r, "owner"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	spender, err := id.ParseAddress(chi.URLParam(r, "spender"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	allowance, err := h.service.Allowance(ctx, proxy, owner, spender)
	if err != nil {
		h.fail(ctx, w, "allowance read failed", err, "token", proxy.Hex())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAmount(proxy, allowance))
}

// HandleListEvents handles GET /tokens/{token}/events.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proxy, ok := h.tokenParam(w, r)
	if !ok {
		return
	}
	events, err := h.events.List(ctx, proxy.Hex())
	if err != nil {
		h.fail(ctx, w, "list audit events failed", dErrors.Wrap(err, dErrors.CodeUnavailable, "audit events unavailable"), "token", proxy.Hex())
		return
	}
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEvent(e))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleRecentEvents handles GET /audit/events?limit=n.
func (h *Handler) HandleRecentEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxEventLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("limit must be between 1 and %d", maxEventLimit)))
			return
		}
		limit = n
	}
	events, err := h.events.Recent(ctx, limit)
	if err != nil {
		h.fail(ctx, w, "list recent audit events failed", dErrors.Wrap(err, dErrors.CodeUnavailable, "audit events unavailable"))
		return
	}
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEvent(e))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) tokenParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	proxy, err := id.ParseAddress(chi.URLParam(r, "token"))
	if err != nil {
		httputil.WriteError(w, err)
		return common.Address{}, false
	}
	return proxy, true
}

// fail logs and renders a service error. Denials carry the result code next
// to the failure tag.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs,
		"error", err,
		"caller", requestcontext.Caller(ctx).Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)

	var denied *models.DeniedError
	if errors.As(err, &denied) {
		h.logger.InfoContext(ctx, msg, append(attrs, "result", strconv.Itoa(int(denied.Result)))...)
		status, body := httputil.ErrorBody(err)
		httputil.WriteJSON(w, status, DeniedResponse{
			ErrorResponse:  body,
			ResultResponse: toResult(denied.Result),
		})
		return
	}

	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

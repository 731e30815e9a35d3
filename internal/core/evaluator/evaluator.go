// Package evaluator decides whether a prospective transfer is allowed and
// returns a stable result code. It never writes state; approved decisions
// carry the ledger entries the caller records after moving balances.
package evaluator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tokencore/internal/core/ledger"
	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	id "tokencore/pkg/domain"
)

// Request is a prospective transfer of Amount from From to To.
type Request struct {
	Token  *models.Token
	Core   common.Address
	Scopes []id.ScopeID
	From   common.Address
	To     common.Address
	Amount *uint256.Int
	Now    time.Time
	// Audit enables the scope checks: rate conversion, user resolution and
	// ledger entries. Without it only the balance checks run.
	Audit bool
	// EnforceLimits applies the limit mask of each active scope.
	EnforceLimits bool
}

// Decision is the evaluator's verdict.
type Decision struct {
	Result  models.ResultCode
	Entries []ledger.Entry
}

// Allowed reports whether the transfer may proceed.
func (d *Decision) Allowed() bool {
	return d.Result.IsOK()
}

// Evaluator applies the transferability rules.
type Evaluator struct {
	users  ports.UserRegistry
	rates  ports.RateOracle
	keys   models.LimitKeys
	logger *slog.Logger
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithLimitKeys overrides the class-limit vector layout.
func WithLimitKeys(keys models.LimitKeys) Option {
	return func(e *Evaluator) {
		e.keys = keys
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// New creates an Evaluator. Either oracle may be nil; scopes that need a
// missing oracle deny with the matching result code.
func New(users ports.UserRegistry, rates ports.RateOracle, opts ...Option) *Evaluator {
	e := &Evaluator{
		users:  users,
		rates:  rates,
		keys:   models.DefaultLimitKeys(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// activeScope is a scope that records or limits at least one side.
type activeScope struct {
	cfg      *models.AuditConfiguration
	sender   bool
	receiver bool
}

// Evaluate runs the checks in order: sender, receiver, balance, then for
// active scopes rate conversion, user resolution and limits. The first
// failing check decides the result. Errors are reserved for storage failures
// and cancellation.
func (e *Evaluator) Evaluate(ctx context.Context, st ports.State, req Request) (*Decision, error) {
	if id.IsNullAddress(req.From) {
		return deny(models.ResultInvalidSender), nil
	}
	if id.IsNullAddress(req.To) {
		return deny(models.ResultNoRecipient), nil
	}
	amount := req.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}
	balance, err := st.Balance(ctx, req.Token.Address, req.From)
	if err != nil {
		return nil, err
	}
	if balance.Lt(amount) {
		return deny(models.ResultInsufficientTokens), nil
	}
	if !req.Audit || len(req.Scopes) == 0 {
		return &Decision{Result: models.ResultOK}, nil
	}

	scopes, err := e.activeScopes(ctx, st, req)
	if err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return &Decision{Result: models.ResultOK}, nil
	}

	snap, err := e.gatherSnapshot(ctx, req, amount, scopes)
	if err != nil {
		return nil, err
	}
	if code := snap.resolve(); !code.IsOK() {
		e.logger.DebugContext(ctx, "transfer denied by snapshot",
			"token", req.Token.Address.Hex(),
			"result", code.String(),
		)
		return deny(code), nil
	}

	entries := make([]ledger.Entry, 0, len(scopes))
	for _, sc := range scopes {
		owner := sc.cfg.Owner(req.Core, req.Token.Address)
		converted := snap.converted[sc.cfg.CurrencyIndex]
		entry := ledger.Entry{Config: sc.cfg, Amount: converted}
		if sc.sender {
			entry.Sender = &models.AuditKey{Owner: owner, Scope: sc.cfg.Scope, User: snap.sender.user.ID}
		}
		if sc.receiver {
			entry.Receiver = &models.AuditKey{Owner: owner, Scope: sc.cfg.Scope, User: snap.receiver.user.ID}
		}
		if req.EnforceLimits {
			code, err := e.checkLimits(ctx, st, sc, entry, snap, uint64(req.Now.Unix()))
			if err != nil {
				return nil, err
			}
			if !code.IsOK() {
				return deny(code), nil
			}
		}
		entries = append(entries, entry)
	}
	return &Decision{Result: models.ResultOK, Entries: entries}, nil
}

func deny(code models.ResultCode) *Decision {
	return &Decision{Result: code}
}

func (e *Evaluator) activeScopes(ctx context.Context, st ports.State, req Request) ([]activeScope, error) {
	var out []activeScope
	for _, scope := range req.Scopes {
		cfg, err := st.AuditConfiguration(ctx, scope)
		if err != nil {
			return nil, err
		}
		if cfg == nil || cfg.Mode == models.AuditModeDisabled {
			continue
		}
		fromFlags, err := st.AuditTriggers(ctx, scope, req.From)
		if err != nil {
			return nil, err
		}
		toFlags, err := st.AuditTriggers(ctx, scope, req.To)
		if err != nil {
			return nil, err
		}
		sc := activeScope{
			cfg:      cfg,
			sender:   ledger.Active(cfg, fromFlags, ledger.RoleSender),
			receiver: ledger.Active(cfg, toFlags, ledger.RoleReceiver),
		}
		if sc.sender || sc.receiver {
			out = append(out, sc)
		}
	}
	return out, nil
}

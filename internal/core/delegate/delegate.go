// Package delegate holds the rule modules a token can be bound to. Delegates
// own no state: every capability runs against the core State in its Env.
package delegate

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tokencore/internal/core/evaluator"
	"tokencore/internal/core/ledger"
	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	id "tokencore/pkg/domain"
)

// Env is what the core hands a delegate for one call.
type Env struct {
	State     ports.State
	Token     *models.Token
	Scopes    []id.ScopeID
	Core      common.Address
	Now       time.Time
	Evaluator *evaluator.Evaluator
	// Recorded, when set, observes each ledger update of a committed transfer.
	Recorded func(ledger.Outcome)
}

// Delegate is the capability set of a rule module.
type Delegate interface {
	// Kind names the rule module, e.g. "limitable".
	Kind() string
	Mint(ctx context.Context, env Env, to common.Address, amount *uint256.Int) error
	Burn(ctx context.Context, env Env, from common.Address, amount *uint256.Int) error
	Approve(ctx context.Context, env Env, owner, spender common.Address, amount *uint256.Int) error
	// Transfer returns the evaluation result. A result other than OK comes
	// with a *models.DeniedError so the enclosing transaction rolls back.
	Transfer(ctx context.Context, env Env, from, to common.Address, amount *uint256.Int) (models.ResultCode, error)
	TransferFrom(ctx context.Context, env Env, spender, from, to common.Address, amount *uint256.Int) (models.ResultCode, error)
	CanTransfer(ctx context.Context, env Env, from, to common.Address, amount *uint256.Int) (models.ResultCode, error)
}

const (
	KindBase      = "base"
	KindAuditable = "auditable"
	KindLimitable = "limitable"
)

// ruleSet implements every variant; the flags select which checks run.
type ruleSet struct {
	kind   string
	audit  bool
	limits bool
}

// NewBase returns the plain ledger: transfers check sender, receiver and
// balance only.
func NewBase() Delegate {
	return &ruleSet{kind: KindBase}
}

// NewAuditable records transfers in the audit ledger without limit checks.
func NewAuditable() Delegate {
	return &ruleSet{kind: KindAuditable, audit: true}
}

// NewLimitable records transfers and enforces class limits.
func NewLimitable() Delegate {
	return &ruleSet{kind: KindLimitable, audit: true, limits: true}
}

func (r *ruleSet) Kind() string { return r.kind }

func (r *ruleSet) Mint(ctx context.Context, env Env, to common.Address, amount *uint256.Int) error {
	if id.IsNullAddress(to) {
		return models.ErrNullAccount
	}
	supply, err := env.State.TotalSupply(ctx, env.Token.Address)
	if err != nil {
		return err
	}
	newSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return models.ErrSupplyOverflow
	}
	balance, err := env.State.Balance(ctx, env.Token.Address, to)
	if err != nil {
		return err
	}
	if err := env.State.SetTotalSupply(ctx, env.Token.Address, newSupply); err != nil {
		return err
	}
	return env.State.SetBalance(ctx, env.Token.Address, to, new(uint256.Int).Add(balance, amount))
}

func (r *ruleSet) Burn(ctx context.Context, env Env, from common.Address, amount *uint256.Int) error {
	if id.IsNullAddress(from) {
		return models.ErrNullAccount
	}
	balance, err := env.State.Balance(ctx, env.Token.Address, from)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return models.ErrInsufficientBalance
	}
	supply, err := env.State.TotalSupply(ctx, env.Token.Address)
	if err != nil {
		return err
	}
	if err := env.State.SetBalance(ctx, env.Token.Address, from, new(uint256.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return env.State.SetTotalSupply(ctx, env.Token.Address, new(uint256.Int).Sub(supply, amount))
}

func (r *ruleSet) Approve(ctx context.Context, env Env, owner, spender common.Address, amount *uint256.Int) error {
	if id.IsNullAddress(owner) || id.IsNullAddress(spender) {
		return models.ErrNullAccount
	}
	return env.State.SetAllowance(ctx, env.Token.Address, owner, spender, amount)
}

func (r *ruleSet) Transfer(ctx context.Context, env Env, from, to common.Address, amount *uint256.Int) (models.ResultCode, error) {
	decision, err := r.evaluate(ctx, env, from, to, amount)
	if err != nil {
		return models.ResultUnknown, err
	}
	if !decision.Allowed() {
		return decision.Result, models.Deny(decision.Result)
	}
	if err := r.commit(ctx, env, from, to, amount, decision); err != nil {
		return models.ResultUnknown, err
	}
	return models.ResultOK, nil
}

func (r *ruleSet) TransferFrom(ctx context.Context, env Env, spender, from, to common.Address, amount *uint256.Int) (models.ResultCode, error) {
	allowance, err := env.State.Allowance(ctx, env.Token.Address, from, spender)
	if err != nil {
		return models.ResultUnknown, err
	}
	if allowance.Lt(amount) {
		return models.ResultUnknown, models.ErrInsufficientAllowance
	}
	code, err := r.Transfer(ctx, env, from, to, amount)
	if err != nil {
		return code, err
	}
	if err := env.State.SetAllowance(ctx, env.Token.Address, from, spender, new(uint256.Int).Sub(allowance, amount)); err != nil {
		return models.ResultUnknown, err
	}
	return code, nil
}

func (r *ruleSet) CanTransfer(ctx context.Context, env Env, from, to common.Address, amount *uint256.Int) (models.ResultCode, error) {
	decision, err := r.evaluate(ctx, env, from, to, amount)
	if err != nil {
		return models.ResultUnknown, err
	}
	return decision.Result, nil
}

func (r *ruleSet) evaluate(ctx context.Context, env Env, from, to common.Address, amount *uint256.Int) (*evaluator.Decision, error) {
	eval := env.Evaluator
	if eval == nil {
		eval = evaluator.New(nil, nil)
	}
	return eval.Evaluate(ctx, env.State, evaluator.Request{
		Token:         env.Token,
		Core:          env.Core,
		Scopes:        env.Scopes,
		From:          from,
		To:            to,
		Amount:        amount,
		Now:           env.Now,
		Audit:         r.audit,
		EnforceLimits: r.limits,
	})
}

// commit moves the balance then records the approved entries.
func (r *ruleSet) commit(ctx context.Context, env Env, from, to common.Address, amount *uint256.Int, decision *evaluator.Decision) error {
	token := env.Token.Address
	fromBalance, err := env.State.Balance(ctx, token, from)
	if err != nil {
		return err
	}
	if err := env.State.SetBalance(ctx, token, from, new(uint256.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	// Read after the debit so a self-transfer nets to zero.
	toBalance, err := env.State.Balance(ctx, token, to)
	if err != nil {
		return err
	}
	if err := env.State.SetBalance(ctx, token, to, new(uint256.Int).Add(toBalance, amount)); err != nil {
		return err
	}

	now := uint64(env.Now.Unix())
	for _, entry := range decision.Entries {
		out, err := ledger.RecordTransfer(ctx, env.State, entry, now)
		if err != nil {
			return err
		}
		if env.Recorded != nil {
			env.Recorded(out)
		}
	}
	return nil
}

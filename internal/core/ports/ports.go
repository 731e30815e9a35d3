//go:generate mockgen -destination=mocks/mocks.go -package=mocks tokencore/internal/core/ports AuditPublisher,UserRegistry,RateOracle

// Package ports defines the interfaces the core consumes: its storage, the
// external user registry and rate oracle, and the audit event sink.
package ports

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tokencore/internal/core/models"
	id "tokencore/pkg/domain"
	"tokencore/pkg/platform/audit"
)

// AuditPublisher emits audit events for core actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// State is the core's shared storage. Delegates read and write it only
// through this handle. Reads of absent keys return zero values.
type State interface {
	// Token returns the registration for a proxy address, or sentinel.ErrNotFound.
	Token(ctx context.Context, proxy common.Address) (*models.Token, error)
	PutToken(ctx context.Context, token *models.Token) error
	DeleteToken(ctx context.Context, proxy common.Address) error
	// CountTokensByDelegate returns how many proxies are bound to a delegate id.
	CountTokensByDelegate(ctx context.Context, delegateID id.DelegateID) (int, error)

	Balance(ctx context.Context, token, account common.Address) (*uint256.Int, error)
	SetBalance(ctx context.Context, token, account common.Address, amount *uint256.Int) error
	TotalSupply(ctx context.Context, token common.Address) (*uint256.Int, error)
	SetTotalSupply(ctx context.Context, token common.Address, amount *uint256.Int) error
	Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error)
	SetAllowance(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error

	// AuditConfiguration returns the scope's configuration; a missing one
	// reads as mode disabled.
	AuditConfiguration(ctx context.Context, scope id.ScopeID) (*models.AuditConfiguration, error)
	PutAuditConfiguration(ctx context.Context, cfg *models.AuditConfiguration) error
	AuditTriggers(ctx context.Context, scope id.ScopeID, account common.Address) (models.AuditTriggers, error)
	PutAuditTriggers(ctx context.Context, scope id.ScopeID, account common.Address, triggers models.AuditTriggers) error
	// AuditRecord reports whether the record exists; absent records are zero.
	AuditRecord(ctx context.Context, key models.AuditKey) (*models.AuditRecord, bool, error)
	PutAuditRecord(ctx context.Context, key models.AuditKey, record *models.AuditRecord) error
}

// StoreTx is the transactional boundary for core operations and the only way
// to obtain a State. Every write made through the State passed to fn commits
// together or not at all.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, st State) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(ctx context.Context, st State) error) error
}

// User is a user-registry entry.
type User struct {
	ID         id.UserID
	ValidFrom  time.Time
	ValidUntil time.Time
	Suspended  bool
}

// ValidAt reports whether the entry is usable at t. Zero bounds are open.
func (u *User) ValidAt(t time.Time) bool {
	if u == nil || u.ID.IsNil() || u.Suspended {
		return false
	}
	if !u.ValidFrom.IsZero() && t.Before(u.ValidFrom) {
		return false
	}
	if !u.ValidUntil.IsZero() && !t.Before(u.ValidUntil) {
		return false
	}
	return true
}

// UserRegistry maps addresses to users and users to class limits.
type UserRegistry interface {
	// ResolveUser returns nil, nil when the address is unknown.
	ResolveUser(ctx context.Context, account common.Address) (*User, error)
	// ClassLimits returns the user's limit vector indexed by category.
	ClassLimits(ctx context.Context, userID id.UserID) ([]uint256.Int, error)
}

// RateOracle converts token amounts into a reference currency.
type RateOracle interface {
	Convert(ctx context.Context, amount *uint256.Int, fromCurrency string, toCurrencyIndex uint32) (*uint256.Int, error)
}

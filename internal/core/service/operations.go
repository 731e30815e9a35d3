package service

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	id "tokencore/pkg/domain"
	dErrors "tokencore/pkg/domain-errors"
	"tokencore/pkg/platform/sentinel"
)

func (s *Service) Mint(ctx context.Context, caller, proxy, to common.Address, amount *uint256.Int) error {
	_, err := s.Dispatch(ctx, Call{Op: models.OpMint, Caller: caller, Proxy: proxy, To: to, Amount: amount})
	return err
}

func (s *Service) Burn(ctx context.Context, caller, proxy, from common.Address, amount *uint256.Int) error {
	_, err := s.Dispatch(ctx, Call{Op: models.OpBurn, Caller: caller, Proxy: proxy, From: from, Amount: amount})
	return err
}

func (s *Service) Approve(ctx context.Context, caller, proxy, owner, spender common.Address, amount *uint256.Int) error {
	_, err := s.Dispatch(ctx, Call{Op: models.OpApprove, Caller: caller, Proxy: proxy, From: owner, Spender: spender, Amount: amount})
	return err
}

// Transfer moves amount from one account to another. A denial returns the
// result code together with a *models.DeniedError.
func (s *Service) Transfer(ctx context.Context, caller, proxy, from, to common.Address, amount *uint256.Int) (models.ResultCode, error) {
	return s.Dispatch(ctx, Call{Op: models.OpTransfer, Caller: caller, Proxy: proxy, From: from, To: to, Amount: amount})
}

func (s *Service) TransferFrom(ctx context.Context, caller, proxy, spender, from, to common.Address, amount *uint256.Int) (models.ResultCode, error) {
	return s.Dispatch(ctx, Call{Op: models.OpTransferFrom, Caller: caller, Proxy: proxy, Spender: spender, From: from, To: to, Amount: amount})
}

// CanTransfer evaluates a transfer without changing any state. Anyone may call it.
func (s *Service) CanTransfer(ctx context.Context, proxy, from, to common.Address, amount *uint256.Int) (models.ResultCode, error) {
	return s.Dispatch(ctx, Call{Op: models.OpCanTransfer, Proxy: proxy, From: from, To: to, Amount: amount})
}

// Token returns the registration of a proxy.
func (s *Service) Token(ctx context.Context, proxy common.Address) (*models.Token, error) {
	var token *models.Token
	err := s.view(ctx, "failed to load token", func(ctx context.Context, st ports.State) error {
		var err error
		token, err = st.Token(ctx, proxy)
		return err
	})
	return token, err
}

func (s *Service) BalanceOf(ctx context.Context, proxy, account common.Address) (*uint256.Int, error) {
	var balance *uint256.Int
	err := s.view(ctx, "failed to load balance", func(ctx context.Context, st ports.State) error {
		if _, err := st.Token(ctx, proxy); err != nil {
			return err
		}
		var err error
		balance, err = st.Balance(ctx, proxy, account)
		return err
	})
	return balance, err
}

func (s *Service) TotalSupply(ctx context.Context, proxy common.Address) (*uint256.Int, error) {
	var supply *uint256.Int
	err := s.view(ctx, "failed to load total supply", func(ctx context.Context, st ports.State) error {
		if _, err := st.Token(ctx, proxy); err != nil {
			return err
		}
		var err error
		supply, err = st.TotalSupply(ctx, proxy)
		return err
	})
	return supply, err
}

func (s *Service) Allowance(ctx context.Context, proxy, owner, spender common.Address) (*uint256.Int, error) {
	var allowance *uint256.Int
	err := s.view(ctx, "failed to load allowance", func(ctx context.Context, st ports.State) error {
		if _, err := st.Token(ctx, proxy); err != nil {
			return err
		}
		var err error
		allowance, err = st.Allowance(ctx, proxy, owner, spender)
		return err
	})
	return allowance, err
}

// AuditRecord returns the core-owned record of a user for a scope. The
// boolean is false when the user was never recorded.
func (s *Service) AuditRecord(ctx context.Context, scope id.ScopeID, user id.UserID) (*models.AuditRecord, bool, error) {
	return s.auditRecord(ctx, models.AuditKey{Owner: s.address, Scope: scope, User: user})
}

// TokenAuditRecord returns the record a per-token scope keeps for a user.
func (s *Service) TokenAuditRecord(ctx context.Context, proxy common.Address, scope id.ScopeID, user id.UserID) (*models.AuditRecord, bool, error) {
	return s.auditRecord(ctx, models.AuditKey{Owner: proxy, Scope: scope, User: user})
}

func (s *Service) auditRecord(ctx context.Context, key models.AuditKey) (*models.AuditRecord, bool, error) {
	var (
		record *models.AuditRecord
		exists bool
	)
	err := s.view(ctx, "failed to load audit record", func(ctx context.Context, st ports.State) error {
		var err error
		record, exists, err = st.AuditRecord(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return record, exists, nil
}

// view runs a read and maps a missing token to ErrDelegateNotFound.
func (s *Service) view(ctx context.Context, msg string, fn func(ctx context.Context, st ports.State) error) error {
	err := s.store.View(ctx, fn)
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.ErrDelegateNotFound
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

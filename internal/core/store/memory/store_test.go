package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"

	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	"tokencore/pkg/platform/sentinel"
)

// =============================================================================
// In-Memory Core Store Test Suite
// =============================================================================
// Justification for unit tests: rollback of a failed unit of work is the
// store's contract; service tests only observe it indirectly.

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

var (
	tokenAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	alice     = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob       = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
)

func (s *StoreSuite) balance(account common.Address) uint64 {
	var out uint64
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
		b, err := st.Balance(ctx, tokenAddr, account)
		out = b.Uint64()
		return err
	}))
	return out
}

func (s *StoreSuite) TestRunInTx() {
	s.Run("commits all writes on success", func() {
		err := s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
			s.Require().NoError(st.SetBalance(ctx, tokenAddr, alice, uint256.NewInt(10)))
			return st.SetTotalSupply(ctx, tokenAddr, uint256.NewInt(10))
		})
		s.Require().NoError(err)
		s.Equal(uint64(10), s.balance(alice))
	})

	s.Run("rolls back every write on error", func() {
		boom := errors.New("boom")
		err := s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
			s.Require().NoError(st.SetBalance(ctx, tokenAddr, alice, uint256.NewInt(3)))
			s.Require().NoError(st.SetBalance(ctx, tokenAddr, bob, uint256.NewInt(7)))
			s.Require().NoError(st.SetBalance(ctx, tokenAddr, alice, uint256.NewInt(1)))
			return boom
		})
		s.ErrorIs(err, boom)
		s.Equal(uint64(10), s.balance(alice))
		s.Equal(uint64(0), s.balance(bob))
	})

	s.Run("rolls back on panic", func() {
		s.Panics(func() {
			_ = s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
				_ = st.SetBalance(ctx, tokenAddr, alice, uint256.NewInt(99))
				panic("delegate bug")
			})
		})
		s.Equal(uint64(10), s.balance(alice))
	})

	s.Run("rolls back deletes and audit records", func() {
		token := &models.Token{Address: tokenAddr, DelegateID: 1}
		key := models.AuditKey{Owner: tokenAddr, Scope: 1, User: 5}
		s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
			return st.PutToken(ctx, token)
		}))

		err := s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
			s.Require().NoError(st.DeleteToken(ctx, tokenAddr))
			s.Require().NoError(st.PutAuditRecord(ctx, key, &models.AuditRecord{CreatedAt: 1}))
			return errors.New("abort")
		})
		s.Error(err)

		s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
			got, err := st.Token(ctx, tokenAddr)
			s.Require().NoError(err)
			s.Equal(*token, *got)
			_, exists, err := st.AuditRecord(ctx, key)
			s.False(exists)
			return err
		}))
	})
}

func (s *StoreSuite) TestView() {
	s.Run("writes are rejected", func() {
		err := s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
			return st.SetBalance(ctx, tokenAddr, alice, uint256.NewInt(1))
		})
		s.ErrorIs(err, ErrReadOnly)
	})

	s.Run("missing token is not found", func() {
		err := s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
			_, err := st.Token(ctx, bob)
			return err
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("missing configuration reads as disabled", func() {
		s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
			cfg, err := st.AuditConfiguration(ctx, 42)
			s.Equal(models.AuditModeDisabled, cfg.Mode)
			return err
		}))
	})
}

func (s *StoreSuite) TestCountTokensByDelegate() {
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
		s.Require().NoError(st.PutToken(ctx, &models.Token{Address: alice, DelegateID: 1}))
		s.Require().NoError(st.PutToken(ctx, &models.Token{Address: bob, DelegateID: 1}))
		return st.PutToken(ctx, &models.Token{Address: tokenAddr, DelegateID: 2})
	}))

	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
		n, err := st.CountTokensByDelegate(ctx, 1)
		s.Equal(2, n)
		return err
	}))
}

func (s *StoreSuite) TestReturnedValuesAreCopies() {
	key := models.AuditKey{Owner: tokenAddr, Scope: 1, User: 1}
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
		return st.PutAuditRecord(ctx, key, &models.AuditRecord{CreatedAt: 100})
	}))

	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
		rec, _, err := st.AuditRecord(ctx, key)
		rec.CreatedAt = 1
		return err
	}))
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
		rec, exists, err := st.AuditRecord(ctx, key)
		s.True(exists)
		s.Equal(uint64(100), rec.CreatedAt)
		return err
	}))
}

package delegate

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tokencore/internal/core/evaluator"
	"tokencore/internal/core/ledger"
	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	"tokencore/internal/core/ports/mocks"
	"tokencore/internal/core/store/memory"
	id "tokencore/pkg/domain"
)

// =============================================================================
// Delegate Test Suite
// =============================================================================
// Justification for unit tests: delegates are the only code that moves
// balances. Conservation and rollback are checked here against the real
// journaled store.

type DelegateSuite struct {
	suite.Suite
	ctrl  *gomock.Controller
	users *mocks.MockUserRegistry
	rates *mocks.MockRateOracle
	store *memory.Store
	ctx   context.Context
	token *models.Token
}

func TestDelegateSuite(t *testing.T) {
	suite.Run(t, new(DelegateSuite))
}

var (
	coreAddr = common.HexToAddress("0xc0de000000000000000000000000000000000000")
	alice    = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob      = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
	carol    = common.HexToAddress("0xca20100000000000000000000000000000000000")
)

func (s *DelegateSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.users = mocks.NewMockUserRegistry(s.ctrl)
	s.rates = mocks.NewMockRateOracle(s.ctrl)
	s.store = memory.New()
	s.ctx = context.Background()
	s.token = &models.Token{Address: common.HexToAddress("0x7070"), DelegateID: 1, Currency: "EUR"}
}

func (s *DelegateSuite) env(st ports.State) Env {
	return Env{
		State:     st,
		Token:     s.token,
		Scopes:    []id.ScopeID{0},
		Core:      coreAddr,
		Now:       time.Unix(1_700_000_000, 0),
		Evaluator: evaluator.New(s.users, s.rates),
	}
}

func (s *DelegateSuite) run(fn func(ctx context.Context, env Env) error) error {
	return s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
		return fn(ctx, s.env(st))
	})
}

func (s *DelegateSuite) balance(account common.Address) uint64 {
	var out uint64
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
		b, err := st.Balance(ctx, s.token.Address, account)
		out = b.Uint64()
		return err
	}))
	return out
}

func (s *DelegateSuite) supply() uint64 {
	var out uint64
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
		b, err := st.TotalSupply(ctx, s.token.Address)
		out = b.Uint64()
		return err
	}))
	return out
}

func (s *DelegateSuite) mint(d Delegate, to common.Address, amount uint64) {
	s.Require().NoError(s.run(func(ctx context.Context, env Env) error {
		return d.Mint(ctx, env, to, uint256.NewInt(amount))
	}))
}

// =============================================================================
// Mint / Burn / Approve
// =============================================================================

func (s *DelegateSuite) TestMintAndBurn() {
	d := NewBase()

	s.Run("mint credits balance and supply", func() {
		s.mint(d, alice, 1_000_000)
		s.Equal(uint64(1_000_000), s.balance(alice))
		s.Equal(uint64(1_000_000), s.supply())
	})

	s.Run("mint to null address is rejected", func() {
		err := s.run(func(ctx context.Context, env Env) error {
			return d.Mint(ctx, env, id.NullAddress, uint256.NewInt(1))
		})
		s.ErrorIs(err, models.ErrNullAccount)
	})

	s.Run("mint past 2^256 is rejected", func() {
		err := s.run(func(ctx context.Context, env Env) error {
			return d.Mint(ctx, env, bob, new(uint256.Int).SetAllOne())
		})
		s.ErrorIs(err, models.ErrSupplyOverflow)
		s.Equal(uint64(1_000_000), s.supply())
	})

	s.Run("burn debits balance and supply", func() {
		s.Require().NoError(s.run(func(ctx context.Context, env Env) error {
			return d.Burn(ctx, env, alice, uint256.NewInt(400))
		}))
		s.Equal(uint64(999_600), s.balance(alice))
		s.Equal(uint64(999_600), s.supply())
	})

	s.Run("burn beyond balance is rejected", func() {
		err := s.run(func(ctx context.Context, env Env) error {
			return d.Burn(ctx, env, bob, uint256.NewInt(1))
		})
		s.ErrorIs(err, models.ErrInsufficientBalance)
	})
}

func (s *DelegateSuite) TestApproveAndTransferFrom() {
	d := NewBase()
	s.mint(d, alice, 100)

	s.Run("approve rejects null spender", func() {
		err := s.run(func(ctx context.Context, env Env) error {
			return d.Approve(ctx, env, alice, id.NullAddress, uint256.NewInt(1))
		})
		s.ErrorIs(err, models.ErrNullAccount)
	})

	s.Require().NoError(s.run(func(ctx context.Context, env Env) error {
		return d.Approve(ctx, env, alice, bob, uint256.NewInt(30))
	}))

	s.Run("spend within allowance", func() {
		var code models.ResultCode
		s.Require().NoError(s.run(func(ctx context.Context, env Env) error {
			var err error
			code, err = d.TransferFrom(ctx, env, bob, alice, carol, uint256.NewInt(20))
			return err
		}))
		s.Equal(models.ResultOK, code)
		s.Equal(uint64(80), s.balance(alice))
		s.Equal(uint64(20), s.balance(carol))
	})

	s.Run("spend beyond remaining allowance", func() {
		err := s.run(func(ctx context.Context, env Env) error {
			_, err := d.TransferFrom(ctx, env, bob, alice, carol, uint256.NewInt(11))
			return err
		})
		s.ErrorIs(err, models.ErrInsufficientAllowance)
		s.Equal(uint64(80), s.balance(alice))
	})
}

// =============================================================================
// Transfer
// =============================================================================

func (s *DelegateSuite) TestBaseTransfer() {
	d := NewBase()
	s.mint(d, alice, 50)

	s.Run("moves balance", func() {
		var code models.ResultCode
		s.Require().NoError(s.run(func(ctx context.Context, env Env) error {
			var err error
			code, err = d.Transfer(ctx, env, alice, bob, uint256.NewInt(20))
			return err
		}))
		s.Equal(models.ResultOK, code)
		s.Equal(uint64(30), s.balance(alice))
		s.Equal(uint64(20), s.balance(bob))
	})

	s.Run("self transfer keeps balance", func() {
		s.Require().NoError(s.run(func(ctx context.Context, env Env) error {
			_, err := d.Transfer(ctx, env, alice, alice, uint256.NewInt(30))
			return err
		}))
		s.Equal(uint64(30), s.balance(alice))
	})

	s.Run("denial carries the result code and changes nothing", func() {
		var code models.ResultCode
		err := s.run(func(ctx context.Context, env Env) error {
			var err error
			code, err = d.Transfer(ctx, env, bob, carol, uint256.NewInt(21))
			return err
		})
		s.ErrorIs(err, models.ErrTransferDenied)
		s.Equal(models.ResultInsufficientTokens, code)
		s.Equal(uint64(20), s.balance(bob))
		s.Equal(uint64(0), s.balance(carol))
	})
}

func (s *DelegateSuite) TestLimitableTransferRecordsAudit() {
	d := NewLimitable()
	s.mint(d, alice, 10_000)

	cfg, err := models.NewAuditConfiguration(0, models.AuditModeAlways, 1, models.StoragePerCore,
		models.MaskOf(models.FieldCreatedAt, models.FieldCumulatedEmission, models.FieldCumulatedReception),
		models.MaskOf(models.FieldCumulatedReception))
	s.Require().NoError(err)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
		return st.PutAuditConfiguration(ctx, cfg)
	}))

	s.rates.EXPECT().Convert(gomock.Any(), gomock.Any(), "EUR", uint32(1)).
		DoAndReturn(func(_ context.Context, amount *uint256.Int, _ string, _ uint32) (*uint256.Int, error) {
			return new(uint256.Int).Set(amount), nil
		}).AnyTimes()
	s.users.EXPECT().ResolveUser(gomock.Any(), alice).Return(&ports.User{ID: 1}, nil).AnyTimes()
	s.users.EXPECT().ResolveUser(gomock.Any(), bob).Return(&ports.User{ID: 2}, nil).AnyTimes()
	s.users.EXPECT().ClassLimits(gomock.Any(), gomock.Any()).Return([]uint256.Int{*uint256.NewInt(0), *uint256.NewInt(500)}, nil).AnyTimes()

	var outcomes []ledger.Outcome
	transfer := func(amount uint64) (models.ResultCode, error) {
		var code models.ResultCode
		err := s.store.RunInTx(s.ctx, func(ctx context.Context, st ports.State) error {
			env := s.env(st)
			env.Recorded = func(o ledger.Outcome) { outcomes = append(outcomes, o) }
			var err error
			code, err = d.Transfer(ctx, env, alice, bob, uint256.NewInt(amount))
			return err
		})
		return code, err
	}

	code, err := transfer(300)
	s.Require().NoError(err)
	s.Equal(models.ResultOK, code)
	s.Equal([]ledger.Outcome{{Created: 2}}, outcomes)

	code, err = transfer(201)
	s.ErrorIs(err, models.ErrTransferDenied)
	s.Equal(models.ResultReceptionCeilingExceeded, code)
	s.Equal(uint64(300), s.balance(bob), "denied transfer leaves balances untouched")

	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
		rec, exists, err := st.AuditRecord(ctx, models.AuditKey{Owner: coreAddr, Scope: 0, User: 2})
		s.True(exists)
		s.Equal(uint64(300), rec.CumulatedReception.Uint64())
		s.Equal(uint64(1_700_000_000), rec.CreatedAt)
		return err
	}))
}

func (s *DelegateSuite) TestCanTransferDoesNotMutate() {
	d := NewBase()
	s.mint(d, alice, 5)

	for range 3 {
		var code models.ResultCode
		s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
			var err error
			code, err = d.CanTransfer(ctx, s.env(st), alice, bob, uint256.NewInt(5))
			return err
		}))
		s.Equal(models.ResultOK, code)
	}
	s.Equal(uint64(5), s.balance(alice))
	s.Equal(uint64(0), s.balance(bob))
}

// Conservation: the sum of balances equals total supply after any sequence
// of mints, burns and transfers, including failed ones.
func (s *DelegateSuite) TestConservation() {
	d := NewBase()
	accounts := []common.Address{alice, bob, carol}
	rng := rand.New(rand.NewPCG(1, 2))

	for range 200 {
		from := accounts[rng.IntN(len(accounts))]
		to := accounts[rng.IntN(len(accounts))]
		amount := uint256.NewInt(uint64(rng.IntN(1000)))
		_ = s.run(func(ctx context.Context, env Env) error {
			switch rng.IntN(3) {
			case 0:
				return d.Mint(ctx, env, to, amount)
			case 1:
				return d.Burn(ctx, env, from, amount)
			default:
				_, err := d.Transfer(ctx, env, from, to, amount)
				return err
			}
		})

		var sum uint64
		for _, a := range accounts {
			sum += s.balance(a)
		}
		s.Require().Equal(s.supply(), sum)
	}
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()
	for _, kind := range []string{KindBase, KindAuditable, KindLimitable} {
		d, ok := c.Lookup(kind)
		if !ok || d.Kind() != kind {
			t.Fatalf("catalog lookup %q returned %v", kind, d)
		}
	}
	if _, ok := c.Lookup("mystery"); ok {
		t.Fatal("unknown kind resolved")
	}
	if got := c.Kinds(); len(got) != 3 || got[0] != KindAuditable {
		t.Fatalf("unexpected kinds %v", got)
	}
}

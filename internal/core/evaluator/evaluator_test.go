package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	"tokencore/internal/core/ports/mocks"
	"tokencore/internal/core/store/memory"
	id "tokencore/pkg/domain"
)

// =============================================================================
// Evaluator Test Suite
// =============================================================================
// Justification for unit tests: result codes are a persisted contract. Each
// rule gets a direct test so a renumbering or reordering fails here first.

type EvaluatorSuite struct {
	suite.Suite
	ctrl  *gomock.Controller
	users *mocks.MockUserRegistry
	rates *mocks.MockRateOracle
	store *memory.Store
	eval  *Evaluator
	ctx   context.Context
	now   time.Time
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorSuite))
}

var (
	coreAddr  = common.HexToAddress("0xc0de000000000000000000000000000000000000")
	tokenAddr = common.HexToAddress("0x7070000000000000000000000000000000000000")
	accountA  = common.HexToAddress("0xaaaa000000000000000000000000000000000000")
	accountB  = common.HexToAddress("0xbbbb000000000000000000000000000000000000")
	accountC  = common.HexToAddress("0xcccc000000000000000000000000000000000000")
)

const (
	userA id.UserID = 1
	userB id.UserID = 2
	userC id.UserID = 3
	scope id.ScopeID = 0
)

func (s *EvaluatorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.users = mocks.NewMockUserRegistry(s.ctrl)
	s.rates = mocks.NewMockRateOracle(s.ctrl)
	s.store = memory.New()
	s.eval = New(s.users, s.rates)
	s.ctx = context.Background()
	s.now = time.Unix(1_700_000_000, 0)

	s.setBalance(accountA, 1_000_000)
}

func (s *EvaluatorSuite) TearDownTest() {
	s.ctrl.Finish()
}

// =============================================================================
// Helpers
// =============================================================================

func (s *EvaluatorSuite) write(fn func(ctx context.Context, st ports.State) error) {
	s.Require().NoError(s.store.RunInTx(s.ctx, fn))
}

func (s *EvaluatorSuite) setBalance(account common.Address, amount uint64) {
	s.write(func(ctx context.Context, st ports.State) error {
		return st.SetBalance(ctx, tokenAddr, account, uint256.NewInt(amount))
	})
}

func (s *EvaluatorSuite) configure(mode models.AuditMode, storage models.StorageScope, data, limit models.FieldMask) {
	cfg, err := models.NewAuditConfiguration(scope, mode, 1, storage, data, limit)
	s.Require().NoError(err)
	s.write(func(ctx context.Context, st ports.State) error {
		return st.PutAuditConfiguration(ctx, cfg)
	})
}

func (s *EvaluatorSuite) trigger(account common.Address, flags models.AuditTriggers) {
	s.write(func(ctx context.Context, st ports.State) error {
		return st.PutAuditTriggers(ctx, scope, account, flags)
	})
}

func (s *EvaluatorSuite) seedRecord(user id.UserID, rec models.AuditRecord) {
	s.write(func(ctx context.Context, st ports.State) error {
		return st.PutAuditRecord(ctx, models.AuditKey{Owner: coreAddr, Scope: scope, User: user}, &rec)
	})
}

// expectRate converts at 1.5.
func (s *EvaluatorSuite) expectRate() {
	s.rates.EXPECT().Convert(gomock.Any(), gomock.Any(), "EUR", uint32(1)).
		DoAndReturn(func(_ context.Context, amount *uint256.Int, _ string, _ uint32) (*uint256.Int, error) {
			v := new(uint256.Int).Mul(amount, uint256.NewInt(3))
			return v.Div(v, uint256.NewInt(2)), nil
		}).AnyTimes()
}

func (s *EvaluatorSuite) expectUser(account common.Address, user id.UserID, limits ...uint64) {
	s.users.EXPECT().ResolveUser(gomock.Any(), account).Return(&ports.User{ID: user}, nil).AnyTimes()
	vector := make([]uint256.Int, len(limits))
	for i, l := range limits {
		vector[i] = *uint256.NewInt(l)
	}
	s.users.EXPECT().ClassLimits(gomock.Any(), user).Return(vector, nil).AnyTimes()
}

func (s *EvaluatorSuite) request(from, to common.Address, amount uint64, limits bool) Request {
	return Request{
		Token:         &models.Token{Address: tokenAddr, DelegateID: 1, Currency: "EUR"},
		Core:          coreAddr,
		Scopes:        []id.ScopeID{scope},
		From:          from,
		To:            to,
		Amount:        uint256.NewInt(amount),
		Now:           s.now,
		Audit:         true,
		EnforceLimits: limits,
	}
}

func (s *EvaluatorSuite) evaluate(req Request) *Decision {
	var d *Decision
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
		var err error
		d, err = s.eval.Evaluate(ctx, st, req)
		return err
	}))
	return d
}

var allFields = models.MaskOf(models.FieldCreatedAt, models.FieldLastTransactionAt, models.FieldLastEmissionAt,
	models.FieldLastReceptionAt, models.FieldCumulatedEmission, models.FieldCumulatedReception)

// =============================================================================
// Basic Checks
// =============================================================================

func (s *EvaluatorSuite) TestBasicChecks() {
	s.Run("null sender", func() {
		d := s.evaluate(s.request(id.NullAddress, accountB, 1, false))
		s.Equal(models.ResultInvalidSender, d.Result)
	})

	s.Run("null receiver", func() {
		d := s.evaluate(s.request(accountA, id.NullAddress, 1, false))
		s.Equal(models.ResultNoRecipient, d.Result)
	})

	s.Run("balance below amount", func() {
		d := s.evaluate(s.request(accountB, accountA, 1, false))
		s.Equal(models.ResultInsufficientTokens, d.Result)
	})

	s.Run("no audit skips every oracle", func() {
		req := s.request(accountA, accountB, 1, false)
		req.Audit = false
		d := s.evaluate(req)
		s.Equal(models.ResultOK, d.Result)
		s.Empty(d.Entries)
	})

	s.Run("disabled scope skips every oracle", func() {
		d := s.evaluate(s.request(accountA, accountB, 1, true))
		s.Equal(models.ResultOK, d.Result)
		s.Empty(d.Entries)
	})
}

func (s *EvaluatorSuite) TestUntriggeredPartiesSkipOracles() {
	s.configure(models.AuditModeTriggersOnly, models.StoragePerCore, allFields, 0)
	s.trigger(accountA, models.AuditTriggers{Receiver: true})

	d := s.evaluate(s.request(accountA, accountB, 10, true))
	s.Equal(models.ResultOK, d.Result)
	s.Empty(d.Entries)
}

// =============================================================================
// Snapshot Checks
// =============================================================================

func (s *EvaluatorSuite) TestRateUnavailable() {
	s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, 0)
	s.rates.EXPECT().Convert(gomock.Any(), gomock.Any(), "EUR", uint32(1)).Return(nil, errors.New("stale"))
	s.users.EXPECT().ResolveUser(gomock.Any(), gomock.Any()).Return(&ports.User{ID: userA}, nil).AnyTimes()

	d := s.evaluate(s.request(accountA, accountB, 10, false))
	s.Equal(models.ResultRateUnavailable, d.Result)
}

func (s *EvaluatorSuite) TestMissingOracleDenies() {
	s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, 0)
	s.eval = New(nil, nil)

	d := s.evaluate(s.request(accountA, accountB, 10, false))
	s.Equal(models.ResultRateUnavailable, d.Result)
}

func (s *EvaluatorSuite) TestUnknownUsers() {
	s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, 0)
	s.expectRate()

	s.Run("unknown sender", func() {
		s.users.EXPECT().ResolveUser(gomock.Any(), accountB).Return(nil, nil)
		s.users.EXPECT().ResolveUser(gomock.Any(), accountC).Return(&ports.User{ID: userC}, nil)
		s.setBalance(accountB, 100)

		d := s.evaluate(s.request(accountB, accountC, 10, false))
		s.Equal(models.ResultUnknownSender, d.Result)
	})

	s.Run("suspended receiver", func() {
		s.users.EXPECT().ResolveUser(gomock.Any(), accountA).Return(&ports.User{ID: userA}, nil)
		s.users.EXPECT().ResolveUser(gomock.Any(), accountC).Return(&ports.User{ID: userC, Suspended: true}, nil)

		d := s.evaluate(s.request(accountA, accountC, 10, false))
		s.Equal(models.ResultUnknownReceiver, d.Result)
	})

	s.Run("expired receiver", func() {
		s.users.EXPECT().ResolveUser(gomock.Any(), accountA).Return(&ports.User{ID: userA}, nil)
		s.users.EXPECT().ResolveUser(gomock.Any(), accountC).Return(&ports.User{ID: userC, ValidUntil: s.now}, nil)

		d := s.evaluate(s.request(accountA, accountC, 10, false))
		s.Equal(models.ResultUnknownReceiver, d.Result)
	})

	s.Run("registry failure denies instead of failing", func() {
		s.users.EXPECT().ResolveUser(gomock.Any(), accountA).Return(nil, errors.New("registry down"))
		s.users.EXPECT().ResolveUser(gomock.Any(), accountC).Return(&ports.User{ID: userC}, nil)

		d := s.evaluate(s.request(accountA, accountC, 10, false))
		s.Equal(models.ResultUnknownSender, d.Result)
	})
}

func (s *EvaluatorSuite) TestCancelledContextIsAnError() {
	s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, 0)
	s.rates.EXPECT().Convert(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, context.Canceled).AnyTimes()
	s.users.EXPECT().ResolveUser(gomock.Any(), gomock.Any()).Return(nil, context.Canceled).AnyTimes()

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := s.store.View(ctx, func(ctx context.Context, st ports.State) error {
		_, err := s.eval.Evaluate(ctx, st, s.request(accountA, accountB, 1, false))
		return err
	})
	s.ErrorIs(err, context.Canceled)
}

// =============================================================================
// Ledger Entries
// =============================================================================

func (s *EvaluatorSuite) TestEntries() {
	s.Run("per core scope keys records by core address", func() {
		s.configure(models.AuditModeTriggersOnly, models.StoragePerCore, allFields, 0)
		s.trigger(accountA, models.AuditTriggers{Sender: true})
		s.expectRate()
		s.expectUser(accountA, userA)

		d := s.evaluate(s.request(accountA, accountB, 1000, false))
		s.Require().Equal(models.ResultOK, d.Result)
		s.Require().Len(d.Entries, 1)
		e := d.Entries[0]
		s.Equal(models.AuditKey{Owner: coreAddr, Scope: scope, User: userA}, *e.Sender)
		s.Nil(e.Receiver, "untriggered receiver is not recorded")
		s.Equal(uint64(1500), e.Amount.Uint64())
	})

	s.Run("per token scope keys records by token address", func() {
		s.configure(models.AuditModeAlways, models.StoragePerToken, models.MaskOf(models.FieldCumulatedReception), 0)
		s.expectUser(accountB, userB)

		d := s.evaluate(s.request(accountA, accountB, 2, false))
		s.Require().Len(d.Entries, 1)
		s.Nil(d.Entries[0].Sender, "sender has no recorded field")
		s.Equal(tokenAddr, d.Entries[0].Receiver.Owner)
	})
}

func (s *EvaluatorSuite) TestSharedCurrencyConvertsOnce() {
	second := id.ScopeID(9)
	cfg, err := models.NewAuditConfiguration(second, models.AuditModeAlways, 1, models.StoragePerCore, allFields, 0)
	s.Require().NoError(err)
	s.write(func(ctx context.Context, st ports.State) error {
		return st.PutAuditConfiguration(ctx, cfg)
	})
	s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, 0)
	s.rates.EXPECT().Convert(gomock.Any(), gomock.Any(), "EUR", uint32(1)).Return(uint256.NewInt(15), nil).Times(1)
	s.expectUser(accountA, userA)
	s.expectUser(accountB, userB)

	req := s.request(accountA, accountB, 10, false)
	req.Scopes = []id.ScopeID{scope, second}
	d := s.evaluate(req)
	s.Equal(models.ResultOK, d.Result)
	s.Len(d.Entries, 2)
}

// =============================================================================
// Limit Checks
// =============================================================================

func (s *EvaluatorSuite) TestReceptionCeiling() {
	s.configure(models.AuditModeTriggersOnly, models.StoragePerCore,
		models.MaskOf(models.FieldCumulatedEmission, models.FieldCumulatedReception),
		models.MaskOf(models.FieldCumulatedReception))
	s.trigger(accountC, models.AuditTriggers{Receiver: true})
	s.seedRecord(userC, models.AuditRecord{CumulatedReception: *uint256.NewInt(1833)})
	s.expectRate()
	s.expectUser(accountC, userC, 0, 3333)

	s.Run("landing exactly on the ceiling is allowed", func() {
		d := s.evaluate(s.request(accountA, accountC, 1000, true))
		s.Equal(models.ResultOK, d.Result)
	})

	s.Run("one unit past the ceiling is denied", func() {
		d := s.evaluate(s.request(accountA, accountC, 1001, true))
		s.Equal(models.ResultReceptionCeilingExceeded, d.Result)
		s.Empty(d.Entries)
	})

	s.Run("limits are ignored when not enforced", func() {
		d := s.evaluate(s.request(accountA, accountC, 1001, false))
		s.Equal(models.ResultOK, d.Result)
	})
}

func (s *EvaluatorSuite) TestReceptionFloor() {
	s.configure(models.AuditModeAlways, models.StoragePerCore,
		models.MaskOf(models.FieldCumulatedReception), models.MaskOf(models.FieldCumulatedReception))
	s.expectRate()
	s.expectUser(accountB, userB, 0, 100_000, 5000)

	d := s.evaluate(s.request(accountA, accountB, 1000, true))
	s.Equal(models.ResultReceptionFloorNotMet, d.Result)

	d = s.evaluate(s.request(accountA, accountB, 4000, true))
	s.Equal(models.ResultOK, d.Result)
}

func (s *EvaluatorSuite) TestEmissionBounds() {
	s.eval = New(s.users, s.rates, WithLimitKeys(models.LimitKeys{
		EmissionCeiling: 0, EmissionFloor: 1,
		ReceptionCeiling: -1, ReceptionFloor: -1, HoldingPeriod: -1,
		TransactionCooldown: -1, EmissionCooldown: -1, ReceptionCooldown: -1,
	}))
	s.configure(models.AuditModeAlways, models.StoragePerCore,
		models.MaskOf(models.FieldCumulatedEmission), models.MaskOf(models.FieldCumulatedEmission))
	s.expectRate()
	s.expectUser(accountA, userA, 3000, 150)

	s.Equal(models.ResultEmissionCeilingExceeded, s.evaluate(s.request(accountA, accountB, 2001, true)).Result)
	s.Equal(models.ResultEmissionFloorNotMet, s.evaluate(s.request(accountA, accountB, 99, true)).Result)
	s.Equal(models.ResultOK, s.evaluate(s.request(accountA, accountB, 100, true)).Result)
}

func (s *EvaluatorSuite) TestTimeBounds() {
	s.eval = New(s.users, s.rates, WithLimitKeys(models.LimitKeys{
		EmissionCeiling: -1, EmissionFloor: -1, ReceptionCeiling: -1, ReceptionFloor: -1,
		HoldingPeriod: 0, TransactionCooldown: 1, EmissionCooldown: 2, ReceptionCooldown: 3,
	}))
	s.expectRate()
	// holding 1 day, transaction cooldown 60s, emission cooldown 120s, reception cooldown 300s
	s.expectUser(accountA, userA, 86400, 60, 120, 300)
	s.expectUser(accountB, userB, 86400, 60, 120, 300)
	now := uint64(s.now.Unix())

	s.Run("sender without record passes the holding period", func() {
		s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, models.MaskOf(models.FieldCreatedAt))
		s.Equal(models.ResultOK, s.evaluate(s.request(accountA, accountB, 1, true)).Result)
	})

	s.Run("recently recorded sender is inside the holding period", func() {
		s.seedRecord(userA, models.AuditRecord{CreatedAt: now - 3600})
		s.Equal(models.ResultSenderHoldingPeriod, s.evaluate(s.request(accountA, accountB, 1, true)).Result)
	})

	s.Run("sender past the holding period passes", func() {
		s.seedRecord(userA, models.AuditRecord{CreatedAt: now - 86400})
		s.Equal(models.ResultOK, s.evaluate(s.request(accountA, accountB, 1, true)).Result)
	})

	s.Run("sender transaction cooldown", func() {
		s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, models.MaskOf(models.FieldLastTransactionAt))
		s.seedRecord(userA, models.AuditRecord{CreatedAt: 1, LastTransactionAt: now - 30})
		s.Equal(models.ResultSenderTransactionCooldown, s.evaluate(s.request(accountA, accountB, 1, true)).Result)
	})

	s.Run("receiver transaction cooldown", func() {
		s.seedRecord(userA, models.AuditRecord{CreatedAt: 1, LastTransactionAt: now - 61})
		s.seedRecord(userB, models.AuditRecord{CreatedAt: 1, LastTransactionAt: now - 59})
		s.Equal(models.ResultReceiverTransactionCooldown, s.evaluate(s.request(accountA, accountB, 1, true)).Result)
	})

	s.Run("emission cooldown", func() {
		s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, models.MaskOf(models.FieldLastEmissionAt))
		s.seedRecord(userA, models.AuditRecord{CreatedAt: 1, LastEmissionAt: now - 119})
		s.Equal(models.ResultEmissionCooldown, s.evaluate(s.request(accountA, accountB, 1, true)).Result)
	})

	s.Run("reception cooldown", func() {
		s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, models.MaskOf(models.FieldLastReceptionAt))
		s.seedRecord(userB, models.AuditRecord{CreatedAt: 1, LastReceptionAt: now - 10})
		s.Equal(models.ResultReceptionCooldown, s.evaluate(s.request(accountA, accountB, 1, true)).Result)
	})

	s.Run("unset timestamps never cool down", func() {
		s.seedRecord(userB, models.AuditRecord{CreatedAt: 1})
		s.Equal(models.ResultOK, s.evaluate(s.request(accountA, accountB, 1, true)).Result)
	})
}

func (s *EvaluatorSuite) TestEvaluateDoesNotWrite() {
	s.configure(models.AuditModeAlways, models.StoragePerCore, allFields, 0)
	s.expectRate()
	s.expectUser(accountA, userA)
	s.expectUser(accountB, userB)

	first := s.evaluate(s.request(accountA, accountB, 10, false))
	second := s.evaluate(s.request(accountA, accountB, 10, false))
	s.Equal(first.Result, second.Result)

	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, st ports.State) error {
		_, exists, err := st.AuditRecord(ctx, models.AuditKey{Owner: coreAddr, Scope: scope, User: userA})
		s.False(exists)
		return err
	}))
}

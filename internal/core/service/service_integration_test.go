//go:build integration

package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"

	"tokencore/internal/core/delegate"
	"tokencore/internal/core/models"
	"tokencore/internal/core/oracle"
	"tokencore/internal/core/ports"
	"tokencore/internal/core/service"
	"tokencore/internal/core/store/postgres"
	id "tokencore/pkg/domain"
	"tokencore/pkg/testutil/containers"
)

// ServicePostgresSuite runs the dispatcher against the serializable Postgres
// store.
// Justification for integration tests: ceilings hold across concurrent
// transactions only if conflicting evaluations are serialized by the
// database and retried.
type ServicePostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	users    *oracle.MemoryUserRegistry
	service  *service.Service
}

func TestServicePostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ServicePostgresSuite))
}

var (
	coreAddr  = common.HexToAddress("0xc0de000000000000000000000000000000000000")
	proxyAddr = common.HexToAddress("0x7070000000000000000000000000000000000000")
	operator  = common.HexToAddress("0x0be7000000000000000000000000000000000000")
	accountA  = common.HexToAddress("0xaaaa000000000000000000000000000000000000")
	accountB  = common.HexToAddress("0xbbbb000000000000000000000000000000000000")
)

const limitable id.DelegateID = 2

func (s *ServicePostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB, postgres.WithMaxRetries(50))
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *ServicePostgresSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, postgres.Tables...))

	rates := oracle.NewStaticRateSource()
	rates.Set("EUR", 1, oracle.Rate{Value: *uint256.NewInt(1)})
	s.users = oracle.NewMemoryUserRegistry()
	s.users.Register(accountA, ports.User{ID: 1})
	s.users.Register(accountB, ports.User{ID: 2})

	svc, err := service.New(s.store,
		service.WithAddress(coreAddr),
		service.WithOracles(s.users, oracle.NewRatesProvider(rates)),
	)
	s.Require().NoError(err)
	s.service = svc

	s.Require().NoError(svc.DefineDelegate(ctx, limitable, delegate.NewLimitable(), []id.ScopeID{0}))
	s.Require().NoError(svc.DefineProxy(ctx, proxyAddr, limitable, service.WithCurrency("EUR")))
}

func (s *ServicePostgresSuite) TestConcurrentTransfersRespectCeiling() {
	ctx := context.Background()
	s.Require().NoError(s.service.DefineAuditConfiguration(ctx, 0, models.AuditModeAlways, 1, models.StoragePerCore,
		models.MaskOf(models.FieldCumulatedEmission).Flags(), models.MaskOf(models.FieldCumulatedEmission).Flags()))
	s.users.SetClassLimits(1, []uint256.Int{*uint256.NewInt(1000)})
	s.Require().NoError(s.service.Mint(ctx, operator, proxyAddr, accountA, uint256.NewInt(10_000)))

	code, err := s.service.Transfer(ctx, proxyAddr, proxyAddr, accountA, accountB, uint256.NewInt(400))
	s.Require().NoError(err)
	s.Require().Equal(models.ResultOK, code)

	const senders = 8
	var wg sync.WaitGroup
	var allowedCount atomic.Int32
	var deniedCount atomic.Int32

	for range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _ := s.service.Transfer(ctx, proxyAddr, proxyAddr, accountA, accountB, uint256.NewInt(600))
			switch code {
			case models.ResultOK:
				allowedCount.Add(1)
			case models.ResultEmissionCeilingExceeded:
				deniedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), allowedCount.Load(), "exactly one transfer fits under the ceiling")
	s.Equal(int32(senders-1), deniedCount.Load(), "serialization retries re-evaluate the losers")

	rec, exists, err := s.service.AuditRecord(ctx, 0, 1)
	s.Require().NoError(err)
	s.Require().True(exists)
	s.Equal(uint64(1000), rec.CumulatedEmission.Uint64())

	balance, err := s.service.BalanceOf(ctx, proxyAddr, accountA)
	s.Require().NoError(err)
	s.Equal(uint64(9000), balance.Uint64())
}

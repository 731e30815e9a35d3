// Package memory is an in-process core store. RunInTx serializes writers
// behind one lock and journals every write so a failed unit of work is
// rolled back completely.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
	id "tokencore/pkg/domain"
	"tokencore/pkg/platform/sentinel"
)

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("write attempted in read-only view")

type balanceKey struct {
	token   common.Address
	account common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

type triggerKey struct {
	scope   id.ScopeID
	account common.Address
}

type tables struct {
	tokens     map[common.Address]models.Token
	balances   map[balanceKey]uint256.Int
	supplies   map[common.Address]uint256.Int
	allowances map[allowanceKey]uint256.Int
	configs    map[id.ScopeID]models.AuditConfiguration
	triggers   map[triggerKey]models.AuditTriggers
	records    map[models.AuditKey]models.AuditRecord
}

// Store is the in-memory implementation of ports.StoreTx.
type Store struct {
	mu sync.RWMutex
	t  tables
}

// New creates an empty store.
func New() *Store {
	return &Store{t: tables{
		tokens:     make(map[common.Address]models.Token),
		balances:   make(map[balanceKey]uint256.Int),
		supplies:   make(map[common.Address]uint256.Int),
		allowances: make(map[allowanceKey]uint256.Int),
		configs:    make(map[id.ScopeID]models.AuditConfiguration),
		triggers:   make(map[triggerKey]models.AuditTriggers),
		records:    make(map[models.AuditKey]models.AuditRecord),
	}}
}

// RunInTx runs fn with exclusive access. If fn returns an error or panics,
// every write it made is undone in reverse order.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, st ports.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var journal []func()
	committed := false
	defer func() {
		if committed {
			return
		}
		for i := len(journal) - 1; i >= 0; i-- {
			journal[i]()
		}
	}()

	if err := fn(ctx, &state{t: &s.t, journal: &journal}); err != nil {
		return err
	}
	committed = true
	return nil
}

// View runs fn under the read lock; writes fail with ErrReadOnly.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, st ports.State) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &state{t: &s.t, readOnly: true})
}

// state implements ports.State over the tables. It is only valid inside the
// RunInTx or View call that created it.
type state struct {
	t        *tables
	journal  *[]func()
	readOnly bool
}

func put[K comparable, V any](st *state, m map[K]V, k K, v V) error {
	if st.readOnly {
		return ErrReadOnly
	}
	prev, had := m[k]
	*st.journal = append(*st.journal, func() {
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
	m[k] = v
	return nil
}

func remove[K comparable, V any](st *state, m map[K]V, k K) error {
	if st.readOnly {
		return ErrReadOnly
	}
	prev, had := m[k]
	if !had {
		return nil
	}
	*st.journal = append(*st.journal, func() { m[k] = prev })
	delete(m, k)
	return nil
}

func amountOf(m map[balanceKey]uint256.Int, k balanceKey) *uint256.Int {
	v := m[k]
	return &v
}

func (st *state) Token(_ context.Context, proxy common.Address) (*models.Token, error) {
	token, ok := st.t.tokens[proxy]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", proxy.Hex(), sentinel.ErrNotFound)
	}
	return &token, nil
}

func (st *state) PutToken(_ context.Context, token *models.Token) error {
	return put(st, st.t.tokens, token.Address, *token)
}

func (st *state) DeleteToken(_ context.Context, proxy common.Address) error {
	return remove(st, st.t.tokens, proxy)
}

func (st *state) CountTokensByDelegate(_ context.Context, delegateID id.DelegateID) (int, error) {
	n := 0
	for _, token := range st.t.tokens {
		if token.DelegateID == delegateID {
			n++
		}
	}
	return n, nil
}

func (st *state) Balance(_ context.Context, token, account common.Address) (*uint256.Int, error) {
	return amountOf(st.t.balances, balanceKey{token, account}), nil
}

func (st *state) SetBalance(_ context.Context, token, account common.Address, amount *uint256.Int) error {
	return put(st, st.t.balances, balanceKey{token, account}, *amount)
}

func (st *state) TotalSupply(_ context.Context, token common.Address) (*uint256.Int, error) {
	v := st.t.supplies[token]
	return &v, nil
}

func (st *state) SetTotalSupply(_ context.Context, token common.Address, amount *uint256.Int) error {
	return put(st, st.t.supplies, token, *amount)
}

func (st *state) Allowance(_ context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	v := st.t.allowances[allowanceKey{token, owner, spender}]
	return &v, nil
}

func (st *state) SetAllowance(_ context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	return put(st, st.t.allowances, allowanceKey{token, owner, spender}, *amount)
}

func (st *state) AuditConfiguration(_ context.Context, scope id.ScopeID) (*models.AuditConfiguration, error) {
	cfg, ok := st.t.configs[scope]
	if !ok {
		return &models.AuditConfiguration{Scope: scope, Mode: models.AuditModeDisabled}, nil
	}
	return &cfg, nil
}

func (st *state) PutAuditConfiguration(_ context.Context, cfg *models.AuditConfiguration) error {
	return put(st, st.t.configs, cfg.Scope, *cfg)
}

func (st *state) AuditTriggers(_ context.Context, scope id.ScopeID, account common.Address) (models.AuditTriggers, error) {
	return st.t.triggers[triggerKey{scope, account}], nil
}

func (st *state) PutAuditTriggers(_ context.Context, scope id.ScopeID, account common.Address, triggers models.AuditTriggers) error {
	return put(st, st.t.triggers, triggerKey{scope, account}, triggers)
}

func (st *state) AuditRecord(_ context.Context, key models.AuditKey) (*models.AuditRecord, bool, error) {
	record, ok := st.t.records[key]
	return &record, ok, nil
}

func (st *state) PutAuditRecord(_ context.Context, key models.AuditKey, record *models.AuditRecord) error {
	return put(st, st.t.records, key, *record)
}

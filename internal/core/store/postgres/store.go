// Package postgres is the PostgreSQL core storage. Every unit of work runs in
// a SERIALIZABLE transaction carried through the context; serialization
// failures are retried from the start.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tokencore/internal/core/ports"
	dErrors "tokencore/pkg/domain-errors"
	txcontext "tokencore/pkg/platform/tx"
)

const (
	defaultTxTimeout  = 5 * time.Second
	defaultMaxRetries = 5
)

// Schema creates the core tables. Amounts are NUMERIC(78,0) so any 256-bit
// value fits; ids are NUMERIC(20,0) for the full uint64 range.
const Schema = `
CREATE TABLE IF NOT EXISTS core_tokens (
	address     BYTEA PRIMARY KEY,
	delegate_id NUMERIC(20,0) NOT NULL,
	currency    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_core_tokens_delegate ON core_tokens (delegate_id);

CREATE TABLE IF NOT EXISTS core_balances (
	token   BYTEA NOT NULL,
	account BYTEA NOT NULL,
	amount  NUMERIC(78,0) NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (token, account)
);

CREATE TABLE IF NOT EXISTS core_supplies (
	token  BYTEA PRIMARY KEY,
	amount NUMERIC(78,0) NOT NULL CHECK (amount >= 0)
);

CREATE TABLE IF NOT EXISTS core_allowances (
	token   BYTEA NOT NULL,
	owner   BYTEA NOT NULL,
	spender BYTEA NOT NULL,
	amount  NUMERIC(78,0) NOT NULL CHECK (amount >= 0),
	PRIMARY KEY (token, owner, spender)
);

CREATE TABLE IF NOT EXISTS audit_configurations (
	scope          NUMERIC(20,0) PRIMARY KEY,
	mode           SMALLINT NOT NULL,
	currency_index BIGINT NOT NULL,
	storage_scope  SMALLINT NOT NULL,
	data_mask      SMALLINT NOT NULL,
	limit_mask     SMALLINT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_triggers (
	scope    NUMERIC(20,0) NOT NULL,
	account  BYTEA NOT NULL,
	sender   BOOLEAN NOT NULL,
	receiver BOOLEAN NOT NULL,
	excluded BOOLEAN NOT NULL,
	PRIMARY KEY (scope, account)
);

CREATE TABLE IF NOT EXISTS audit_records (
	owner               BYTEA NOT NULL,
	scope               NUMERIC(20,0) NOT NULL,
	user_id             NUMERIC(20,0) NOT NULL,
	created_at          NUMERIC(20,0) NOT NULL,
	last_transaction_at NUMERIC(20,0) NOT NULL,
	last_emission_at    NUMERIC(20,0) NOT NULL,
	last_reception_at   NUMERIC(20,0) NOT NULL,
	cumulated_emission  NUMERIC(78,0) NOT NULL,
	cumulated_reception NUMERIC(78,0) NOT NULL,
	PRIMARY KEY (owner, scope, user_id)
);
`

// Tables lists the core tables, for truncation in tests.
var Tables = []string{
	"core_tokens", "core_balances", "core_supplies", "core_allowances",
	"audit_configurations", "audit_triggers", "audit_records",
}

var (
	_ ports.StoreTx = (*Store)(nil)
	_ ports.State   = (*state)(nil)
)

// Store implements ports.StoreTx.
type Store struct {
	db         *sql.DB
	timeout    time.Duration
	maxRetries int
}

type Option func(*Store)

// WithTxTimeout bounds a unit of work when the caller set no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithMaxRetries sets how many times a serialization failure is retried.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		s.maxRetries = n
	}
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		timeout:    defaultTxTimeout,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate core schema: %w", err)
	}
	return nil
}

// RunInTx runs fn in a SERIALIZABLE transaction. fn may run more than once
// and must not have effects outside the State it is given.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, st ports.State) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
}

// View runs fn in a read-only REPEATABLE READ transaction.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, st ports.State) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, st ports.State) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = s.attempt(ctx, opts, fn)
		if !isSerializationFailure(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}

func (s *Store) attempt(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, st ports.State) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), &state{db: s.db}); err != nil {
		return err
	}
	return tx.Commit()
}

// isSerializationFailure reports SQLSTATE 40001 and deadlocks (40P01).
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}

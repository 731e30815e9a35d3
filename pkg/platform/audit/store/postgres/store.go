package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "tokencore/pkg/platform/audit"
	txcontext "tokencore/pkg/platform/tx"
)

// Schema creates the audit_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id            UUID PRIMARY KEY,
	category      TEXT NOT NULL,
	timestamp     TIMESTAMPTZ NOT NULL,
	action        TEXT NOT NULL,
	token         TEXT NOT NULL DEFAULT '',
	actor         TEXT NOT NULL DEFAULT '',
	subject       TEXT NOT NULL DEFAULT '',
	counterparty  TEXT NOT NULL DEFAULT '',
	amount        TEXT NOT NULL DEFAULT '',
	scope         TEXT NOT NULL DEFAULT '',
	delegate_id   TEXT NOT NULL DEFAULT '',
	result        SMALLINT NOT NULL DEFAULT 0,
	reason        TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_token_idx ON audit_events (token, timestamp);
`

// Store implements audit.Store on PostgreSQL. Appends join the caller's
// transaction when one is carried in the context.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// Append inserts an audit event. Idempotent on the event ID.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action, token, actor, subject,
			counterparty, amount, scope, delegate_id, result, reason, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		string(category),
		event.Timestamp,
		event.Action,
		event.Token,
		event.Actor,
		event.Subject,
		event.Counterparty,
		event.Amount,
		event.Scope,
		event.DelegateID,
		int16(event.Result),
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, category, timestamp, action, token, actor, subject,
		   counterparty, amount, scope, delegate_id, result, reason, request_id
	FROM audit_events
`

// ListByToken returns events for a token, oldest first.
func (s *Store) ListByToken(ctx context.Context, token string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`WHERE token = $1 ORDER BY timestamp ASC`, token)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category string
			result   int16
			event    audit.Event
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&event.Action,
			&event.Token,
			&event.Actor,
			&event.Subject,
			&event.Counterparty,
			&event.Amount,
			&event.Scope,
			&event.DelegateID,
			&result,
			&event.Reason,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Result = uint8(result)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tokencore/internal/core/models"
	id "tokencore/pkg/domain"
	"tokencore/pkg/platform/sentinel"
	txcontext "tokencore/pkg/platform/tx"
)

// state implements ports.State. Queries run on the transaction in ctx.
type state struct {
	db *sql.DB
}

func (st *state) q(ctx context.Context) txcontext.Querier {
	return txcontext.Executor(ctx, st.db)
}

func (st *state) Token(ctx context.Context, proxy common.Address) (*models.Token, error) {
	var (
		delegateID string
		token      = models.Token{Address: proxy}
	)
	err := st.q(ctx).QueryRowContext(ctx,
		`SELECT delegate_id, currency FROM core_tokens WHERE address = $1`,
		proxy.Bytes(),
	).Scan(&delegateID, &token.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token %s: %w", proxy.Hex(), sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	v, err := parseUint(delegateID)
	if err != nil {
		return nil, err
	}
	token.DelegateID = id.DelegateID(v)
	return &token, nil
}

func (st *state) PutToken(ctx context.Context, token *models.Token) error {
	_, err := st.q(ctx).ExecContext(ctx, `
		INSERT INTO core_tokens (address, delegate_id, currency)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE SET
			delegate_id = EXCLUDED.delegate_id,
			currency = EXCLUDED.currency
	`, token.Address.Bytes(), token.DelegateID.String(), token.Currency)
	if err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

func (st *state) DeleteToken(ctx context.Context, proxy common.Address) error {
	if _, err := st.q(ctx).ExecContext(ctx, `DELETE FROM core_tokens WHERE address = $1`, proxy.Bytes()); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (st *state) CountTokensByDelegate(ctx context.Context, delegateID id.DelegateID) (int, error) {
	var n int
	err := st.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM core_tokens WHERE delegate_id = $1`,
		delegateID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

func (st *state) Balance(ctx context.Context, token, account common.Address) (*uint256.Int, error) {
	return st.amount(ctx, "balance",
		`SELECT amount FROM core_balances WHERE token = $1 AND account = $2`,
		token.Bytes(), account.Bytes())
}

func (st *state) SetBalance(ctx context.Context, token, account common.Address, amount *uint256.Int) error {
	return st.exec(ctx, "set balance", `
		INSERT INTO core_balances (token, account, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (token, account) DO UPDATE SET amount = EXCLUDED.amount
	`, token.Bytes(), account.Bytes(), amount.Dec())
}

func (st *state) TotalSupply(ctx context.Context, token common.Address) (*uint256.Int, error) {
	return st.amount(ctx, "total supply",
		`SELECT amount FROM core_supplies WHERE token = $1`,
		token.Bytes())
}

func (st *state) SetTotalSupply(ctx context.Context, token common.Address, amount *uint256.Int) error {
	return st.exec(ctx, "set total supply", `
		INSERT INTO core_supplies (token, amount)
		VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET amount = EXCLUDED.amount
	`, token.Bytes(), amount.Dec())
}

func (st *state) Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	return st.amount(ctx, "allowance",
		`SELECT amount FROM core_allowances WHERE token = $1 AND owner = $2 AND spender = $3`,
		token.Bytes(), owner.Bytes(), spender.Bytes())
}

func (st *state) SetAllowance(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	return st.exec(ctx, "set allowance", `
		INSERT INTO core_allowances (token, owner, spender, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token, owner, spender) DO UPDATE SET amount = EXCLUDED.amount
	`, token.Bytes(), owner.Bytes(), spender.Bytes(), amount.Dec())
}

func (st *state) AuditConfiguration(ctx context.Context, scope id.ScopeID) (*models.AuditConfiguration, error) {
	var (
		cfg                         = models.AuditConfiguration{Scope: scope}
		mode, storage, data, limits int16
		currencyIndex               int64
	)
	err := st.q(ctx).QueryRowContext(ctx, `
		SELECT mode, currency_index, storage_scope, data_mask, limit_mask
		FROM audit_configurations WHERE scope = $1
	`, scope.String()).Scan(&mode, &currencyIndex, &storage, &data, &limits)
	if errors.Is(err, sql.ErrNoRows) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit configuration: %w", err)
	}
	cfg.Mode = models.AuditMode(mode)
	cfg.CurrencyIndex = uint32(currencyIndex)
	cfg.StorageScope = models.StorageScope(storage)
	cfg.DataMask = models.FieldMask(data)
	cfg.LimitMask = models.FieldMask(limits)
	return &cfg, nil
}

func (st *state) PutAuditConfiguration(ctx context.Context, cfg *models.AuditConfiguration) error {
	return st.exec(ctx, "put audit configuration", `
		INSERT INTO audit_configurations (scope, mode, currency_index, storage_scope, data_mask, limit_mask)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scope) DO UPDATE SET
			mode = EXCLUDED.mode,
			currency_index = EXCLUDED.currency_index,
			storage_scope = EXCLUDED.storage_scope,
			data_mask = EXCLUDED.data_mask,
			limit_mask = EXCLUDED.limit_mask
	`, cfg.Scope.String(), int16(cfg.Mode), int64(cfg.CurrencyIndex), int16(cfg.StorageScope), int16(cfg.DataMask), int16(cfg.LimitMask))
}

func (st *state) AuditTriggers(ctx context.Context, scope id.ScopeID, account common.Address) (models.AuditTriggers, error) {
	var t models.AuditTriggers
	err := st.q(ctx).QueryRowContext(ctx, `
		SELECT sender, receiver, excluded FROM audit_triggers
		WHERE scope = $1 AND account = $2
	`, scope.String(), account.Bytes()).Scan(&t.Sender, &t.Receiver, &t.Excluded)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AuditTriggers{}, nil
	}
	if err != nil {
		return models.AuditTriggers{}, fmt.Errorf("get audit triggers: %w", err)
	}
	return t, nil
}

func (st *state) PutAuditTriggers(ctx context.Context, scope id.ScopeID, account common.Address, t models.AuditTriggers) error {
	return st.exec(ctx, "put audit triggers", `
		INSERT INTO audit_triggers (scope, account, sender, receiver, excluded)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope, account) DO UPDATE SET
			sender = EXCLUDED.sender,
			receiver = EXCLUDED.receiver,
			excluded = EXCLUDED.excluded
	`, scope.String(), account.Bytes(), t.Sender, t.Receiver, t.Excluded)
}

func (st *state) AuditRecord(ctx context.Context, key models.AuditKey) (*models.AuditRecord, bool, error) {
	var created, lastTx, lastEmission, lastReception, emission, reception string
	err := st.q(ctx).QueryRowContext(ctx, `
		SELECT created_at, last_transaction_at, last_emission_at, last_reception_at,
			cumulated_emission, cumulated_reception
		FROM audit_records
		WHERE owner = $1 AND scope = $2 AND user_id = $3
	`, key.Owner.Bytes(), key.Scope.String(), key.User.String()).
		Scan(&created, &lastTx, &lastEmission, &lastReception, &emission, &reception)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.AuditRecord{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get audit record: %w", err)
	}

	var rec models.AuditRecord
	for _, f := range []struct {
		dst *uint64
		raw string
	}{
		{&rec.CreatedAt, created},
		{&rec.LastTransactionAt, lastTx},
		{&rec.LastEmissionAt, lastEmission},
		{&rec.LastReceptionAt, lastReception},
	} {
		v, err := parseUint(f.raw)
		if err != nil {
			return nil, false, err
		}
		*f.dst = v
	}
	for _, f := range []struct {
		dst *uint256.Int
		raw string
	}{
		{&rec.CumulatedEmission, emission},
		{&rec.CumulatedReception, reception},
	} {
		v, err := parseAmount(f.raw)
		if err != nil {
			return nil, false, err
		}
		f.dst.Set(v)
	}
	return &rec, true, nil
}

func (st *state) PutAuditRecord(ctx context.Context, key models.AuditKey, rec *models.AuditRecord) error {
	return st.exec(ctx, "put audit record", `
		INSERT INTO audit_records (owner, scope, user_id, created_at, last_transaction_at,
			last_emission_at, last_reception_at, cumulated_emission, cumulated_reception)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (owner, scope, user_id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			last_transaction_at = EXCLUDED.last_transaction_at,
			last_emission_at = EXCLUDED.last_emission_at,
			last_reception_at = EXCLUDED.last_reception_at,
			cumulated_emission = EXCLUDED.cumulated_emission,
			cumulated_reception = EXCLUDED.cumulated_reception
	`,
		key.Owner.Bytes(), key.Scope.String(), key.User.String(),
		formatUint(rec.CreatedAt), formatUint(rec.LastTransactionAt),
		formatUint(rec.LastEmissionAt), formatUint(rec.LastReceptionAt),
		rec.CumulatedEmission.Dec(), rec.CumulatedReception.Dec(),
	)
}

// amount reads a single NUMERIC column; a missing row reads as zero.
func (st *state) amount(ctx context.Context, what, query string, args ...any) (*uint256.Int, error) {
	var raw string
	err := st.q(ctx).QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", what, err)
	}
	return parseAmount(raw)
}

func (st *state) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := st.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("decode amount %q: %w", raw, err)
	}
	return v, nil
}

func parseUint(raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode integer %q: %w", raw, err)
	}
	return v, nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

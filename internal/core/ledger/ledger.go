// Package ledger maintains per-account audit records. Records are created
// lazily on the first qualifying transfer and only masked fields are written.
package ledger

import (
	"context"

	"github.com/holiman/uint256"

	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
)

// Role is the side of a transfer an account is on.
type Role uint8

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// Fields returns the audit fields relevant to the role.
func (r Role) Fields() models.FieldMask {
	if r == RoleSender {
		return models.SenderFields
	}
	return models.ReceiverFields
}

// Triggered reports whether an account with the given flags is recorded in
// role under cfg. A nil configuration is disabled.
func Triggered(cfg *models.AuditConfiguration, triggers models.AuditTriggers, role Role) bool {
	if cfg == nil {
		return false
	}
	switch cfg.Mode {
	case models.AuditModeAlways:
		return true
	case models.AuditModeTriggersOnly:
		if triggers.Excluded {
			return false
		}
		if role == RoleSender {
			return triggers.Sender
		}
		return triggers.Receiver
	}
	return false
}

// Active reports whether role is triggered and has at least one recorded field.
func Active(cfg *models.AuditConfiguration, triggers models.AuditTriggers, role Role) bool {
	return Triggered(cfg, triggers, role) && cfg.DataMask.Intersects(role.Fields())
}

// Entry is one scope's share of an approved transfer. A nil key means that
// side is not recorded.
type Entry struct {
	Config   *models.AuditConfiguration
	Sender   *models.AuditKey
	Receiver *models.AuditKey
	// Amount is the transfer amount in the scope's reference currency.
	Amount *uint256.Int
}

// Outcome counts the records touched by RecordTransfer.
type Outcome struct {
	Created int
	Updated int
}

// Add returns a+b, saturating at 2^256-1.
func Add(a, b *uint256.Int) *uint256.Int {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return sum
}

// RecordTransfer applies an approved transfer to the audit records of entry.
// now is in unix seconds. When both sides map to the same key the record is
// read and written once with both roles applied.
func RecordTransfer(ctx context.Context, st ports.State, entry Entry, now uint64) (Outcome, error) {
	var out Outcome
	if entry.Config == nil {
		return out, nil
	}
	amount := entry.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}

	if entry.Sender != nil && entry.Receiver != nil && *entry.Sender == *entry.Receiver {
		created, err := update(ctx, st, *entry.Sender, entry.Config.DataMask, amount, now, RoleSender, RoleReceiver)
		if err != nil {
			return out, err
		}
		out.count(created)
		return out, nil
	}

	if entry.Sender != nil {
		created, err := update(ctx, st, *entry.Sender, entry.Config.DataMask, amount, now, RoleSender)
		if err != nil {
			return out, err
		}
		out.count(created)
	}
	if entry.Receiver != nil {
		created, err := update(ctx, st, *entry.Receiver, entry.Config.DataMask, amount, now, RoleReceiver)
		if err != nil {
			return out, err
		}
		out.count(created)
	}
	return out, nil
}

func (o *Outcome) count(created bool) {
	if created {
		o.Created++
	} else {
		o.Updated++
	}
}

func update(ctx context.Context, st ports.State, key models.AuditKey, mask models.FieldMask, amount *uint256.Int, now uint64, roles ...Role) (bool, error) {
	record, exists, err := st.AuditRecord(ctx, key)
	if err != nil {
		return false, err
	}
	if record == nil {
		record = &models.AuditRecord{}
	}
	if !exists && mask.Has(models.FieldCreatedAt) {
		record.CreatedAt = now
	}
	if mask.Has(models.FieldLastTransactionAt) {
		record.LastTransactionAt = now
	}
	for _, role := range roles {
		apply(record, mask, role, amount, now)
	}
	if err := st.PutAuditRecord(ctx, key, record); err != nil {
		return false, err
	}
	return !exists, nil
}

func apply(record *models.AuditRecord, mask models.FieldMask, role Role, amount *uint256.Int, now uint64) {
	switch role {
	case RoleSender:
		if mask.Has(models.FieldLastEmissionAt) {
			record.LastEmissionAt = now
		}
		if mask.Has(models.FieldCumulatedEmission) {
			record.CumulatedEmission = *Add(&record.CumulatedEmission, amount)
		}
	case RoleReceiver:
		if mask.Has(models.FieldLastReceptionAt) {
			record.LastReceptionAt = now
		}
		if mask.Has(models.FieldCumulatedReception) {
			record.CumulatedReception = *Add(&record.CumulatedReception, amount)
		}
	}
}

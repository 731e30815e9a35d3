package evaluator

import (
	"context"

	"github.com/holiman/uint256"

	"tokencore/internal/core/ledger"
	"tokencore/internal/core/models"
	"tokencore/internal/core/ports"
)

// checkLimits applies the scope's limit mask to each recorded side, sender
// first. Prospective totals include the converted amount of this transfer.
func (e *Evaluator) checkLimits(ctx context.Context, st ports.State, sc activeScope, entry ledger.Entry, snap *snapshot, now uint64) (models.ResultCode, error) {
	mask := sc.cfg.LimitMask
	if mask == 0 {
		return models.ResultOK, nil
	}
	amount := entry.Amount
	if amount == nil {
		amount = new(uint256.Int)
	}

	if entry.Sender != nil {
		record, _, err := st.AuditRecord(ctx, *entry.Sender)
		if err != nil {
			return models.ResultUnknown, err
		}
		if code := e.senderLimits(mask, record, snap.sender.limits, amount, now); !code.IsOK() {
			return code, nil
		}
	}
	if entry.Receiver != nil {
		record, _, err := st.AuditRecord(ctx, *entry.Receiver)
		if err != nil {
			return models.ResultUnknown, err
		}
		if code := e.receiverLimits(mask, record, snap.receiver.limits, amount, now); !code.IsOK() {
			return code, nil
		}
	}
	return models.ResultOK, nil
}

func (e *Evaluator) senderLimits(mask models.FieldMask, rec *models.AuditRecord, limits []uint256.Int, amount *uint256.Int, now uint64) models.ResultCode {
	// The holding period runs from the first recorded transfer; an unrecorded
	// sender passes and that transfer creates the record.
	if mask.Has(models.FieldCreatedAt) && rec.CreatedAt != 0 {
		if hold, ok := models.Lookup(limits, e.keys.HoldingPeriod); ok && elapsed(rec.CreatedAt, now).Lt(hold) {
			return models.ResultSenderHoldingPeriod
		}
	}
	if mask.Has(models.FieldLastTransactionAt) && coolingDown(rec.LastTransactionAt, now, limits, e.keys.TransactionCooldown) {
		return models.ResultSenderTransactionCooldown
	}
	if mask.Has(models.FieldLastEmissionAt) && coolingDown(rec.LastEmissionAt, now, limits, e.keys.EmissionCooldown) {
		return models.ResultEmissionCooldown
	}
	if mask.Has(models.FieldCumulatedEmission) {
		prospective := ledger.Add(&rec.CumulatedEmission, amount)
		if ceiling, ok := models.Lookup(limits, e.keys.EmissionCeiling); ok && prospective.Gt(ceiling) {
			return models.ResultEmissionCeilingExceeded
		}
		if floor, ok := models.Lookup(limits, e.keys.EmissionFloor); ok && prospective.Lt(floor) {
			return models.ResultEmissionFloorNotMet
		}
	}
	return models.ResultOK
}

func (e *Evaluator) receiverLimits(mask models.FieldMask, rec *models.AuditRecord, limits []uint256.Int, amount *uint256.Int, now uint64) models.ResultCode {
	if mask.Has(models.FieldLastTransactionAt) && coolingDown(rec.LastTransactionAt, now, limits, e.keys.TransactionCooldown) {
		return models.ResultReceiverTransactionCooldown
	}
	if mask.Has(models.FieldLastReceptionAt) && coolingDown(rec.LastReceptionAt, now, limits, e.keys.ReceptionCooldown) {
		return models.ResultReceptionCooldown
	}
	if mask.Has(models.FieldCumulatedReception) {
		prospective := ledger.Add(&rec.CumulatedReception, amount)
		if ceiling, ok := models.Lookup(limits, e.keys.ReceptionCeiling); ok && prospective.Gt(ceiling) {
			return models.ResultReceptionCeilingExceeded
		}
		if floor, ok := models.Lookup(limits, e.keys.ReceptionFloor); ok && prospective.Lt(floor) {
			return models.ResultReceptionFloorNotMet
		}
	}
	return models.ResultOK
}

// elapsed returns now-since in seconds, zero when since is unset or ahead of now.
func elapsed(since, now uint64) *uint256.Int {
	if since == 0 || now <= since {
		return new(uint256.Int)
	}
	return uint256.NewInt(now - since)
}

// coolingDown reports whether a timestamp set at ts is still inside the
// cooldown at key. Unset timestamps never cool down.
func coolingDown(ts, now uint64, limits []uint256.Int, key int) bool {
	if ts == 0 {
		return false
	}
	cooldown, ok := models.Lookup(limits, key)
	return ok && elapsed(ts, now).Lt(cooldown)
}

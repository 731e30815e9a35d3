package service

import (
	"context"

	"tokencore/internal/core/ledger"
	"tokencore/pkg/attrs"
	"tokencore/pkg/platform/audit"
	"tokencore/pkg/requestcontext"
)

// logAudit writes the structured audit line and forwards the event to the
// publisher. Publication failures are logged and never fail the caller.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	s.logger.InfoContext(ctx, string(event), args...)

	if s.auditPub == nil {
		return
	}
	ev := audit.Event{
		Action:       string(event),
		Token:        attrs.ExtractString(attributes, "token"),
		Actor:        attrs.ExtractString(attributes, "caller"),
		Subject:      attrs.FirstString(attributes, "from", "account"),
		Counterparty: attrs.ExtractString(attributes, "to"),
		Amount:       attrs.ExtractString(attributes, "amount"),
		Scope:        attrs.ExtractString(attributes, "scope"),
		DelegateID:   attrs.ExtractString(attributes, "delegate_id"),
		Reason:       attrs.ExtractString(attributes, "reason"),
		RequestID:    requestID,
	}
	if code, ok := attrs.ExtractUint8(attributes, "result"); ok {
		ev.Result = code
	}
	if err := s.auditPub.Emit(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish audit event",
			"event", string(event),
			"error", err,
		)
	}
}

// recordOutcomes feeds committed ledger updates into the metrics.
func (s *Service) recordOutcomes(outcomes []ledger.Outcome) {
	var total ledger.Outcome
	for _, o := range outcomes {
		total.Created += o.Created
		total.Updated += o.Updated
	}
	s.metrics.AddAuditRecords(total.Created, total.Updated)
}

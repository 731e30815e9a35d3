package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and sinks.
type EventCategory string

const (
	// CategoryCompliance covers value movements and rule-engine denials.
	// These need durable storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers changes to who may act on the core: delegate
	// bindings, proxy registrations and rejected callers.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers configuration activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// Token is the hex proxy address the action applies to, empty for
	// core-wide configuration.
	Token string
	// Actor is the caller identity that triggered the action.
	Actor string
	// Subject is the primary account affected (sender, minted-to account).
	Subject string
	// Counterparty is the secondary account (receiver, spender).
	Counterparty string
	// Amount is the decimal token amount, empty when not applicable.
	Amount     string
	Scope      string
	DelegateID string
	// Result is the rule-engine result code for transfer events.
	Result    uint8
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	// Registry events
	EventDelegateDefined AuditEvent = "delegate_defined"
	EventDelegateCleared AuditEvent = "delegate_cleared"
	EventProxyDefined    AuditEvent = "proxy_defined"
	EventProxyRemoved    AuditEvent = "proxy_removed"
	EventCallerRejected  AuditEvent = "caller_rejected"
	EventOraclesDefined  AuditEvent = "oracles_defined"

	// Audit configuration events
	EventAuditConfigurationDefined AuditEvent = "audit_configuration_defined"
	EventAuditTriggersDefined      AuditEvent = "audit_triggers_defined"

	// Ledger events
	EventTokensMinted      AuditEvent = "tokens_minted"
	EventTokensBurned      AuditEvent = "tokens_burned"
	EventApprovalSet       AuditEvent = "approval_set"
	EventTransferCommitted AuditEvent = "transfer_committed"
	EventTransferDenied    AuditEvent = "transfer_denied"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	EventTokensMinted:      CategoryCompliance,
	EventTokensBurned:      CategoryCompliance,
	EventTransferCommitted: CategoryCompliance,
	EventTransferDenied:    CategoryCompliance,

	EventDelegateDefined: CategorySecurity,
	EventDelegateCleared: CategorySecurity,
	EventProxyDefined:    CategorySecurity,
	EventProxyRemoved:    CategorySecurity,
	EventCallerRejected:  CategorySecurity,
	EventOraclesDefined:  CategorySecurity,

	EventAuditConfigurationDefined: CategoryOperations,
	EventAuditTriggersDefined:      CategoryOperations,
	EventApprovalSet:               CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByToken(ctx context.Context, token string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

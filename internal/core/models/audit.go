package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	id "tokencore/pkg/domain"
)

// AuditMode selects which transfers are recorded for a scope.
type AuditMode uint8

const (
	AuditModeDisabled     AuditMode = 0
	AuditModeTriggersOnly AuditMode = 1
	AuditModeAlways       AuditMode = 2
)

// IsValid checks if the mode is one of the supported values.
func (m AuditMode) IsValid() bool {
	return m <= AuditModeAlways
}

func (m AuditMode) String() string {
	switch m {
	case AuditModeDisabled:
		return "disabled"
	case AuditModeTriggersOnly:
		return "triggers_only"
	case AuditModeAlways:
		return "always"
	}
	return "invalid"
}

// ParseAuditMode parses the string form of an audit mode.
func ParseAuditMode(s string) (AuditMode, bool) {
	for m := AuditModeDisabled; m <= AuditModeAlways; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// StorageScope selects who owns the audit records of a scope.
type StorageScope uint8

const (
	// StoragePerCore shares records across every token of the core.
	StoragePerCore StorageScope = 0
	// StoragePerToken keeps separate records per token.
	StoragePerToken StorageScope = 1
)

// IsValid checks if the storage scope is one of the supported values.
func (s StorageScope) IsValid() bool {
	return s <= StoragePerToken
}

func (s StorageScope) String() string {
	switch s {
	case StoragePerCore:
		return "per_core"
	case StoragePerToken:
		return "per_token"
	}
	return "invalid"
}

// ParseStorageScope parses the string form of a storage scope.
func ParseStorageScope(s string) (StorageScope, bool) {
	switch s {
	case "per_core":
		return StoragePerCore, true
	case "per_token":
		return StoragePerToken, true
	}
	return 0, false
}

// Field is one of the recordable audit fields.
type Field uint8

const (
	FieldCreatedAt Field = iota
	FieldLastTransactionAt
	FieldLastEmissionAt
	FieldLastReceptionAt
	FieldCumulatedEmission
	FieldCumulatedReception

	// FieldCount is the number of audit fields; masks are given as that many flags.
	FieldCount = 6
)

var fieldNames = [FieldCount]string{
	"created_at",
	"last_transaction_at",
	"last_emission_at",
	"last_reception_at",
	"cumulated_emission",
	"cumulated_reception",
}

func (f Field) String() string {
	if int(f) < FieldCount {
		return fieldNames[f]
	}
	return "invalid"
}

// FieldMask is a set of audit fields.
type FieldMask uint8

// Fields relevant to each role; a party is recorded only if its mask
// intersects the role's fields.
const (
	SenderFields   FieldMask = 1<<FieldCreatedAt | 1<<FieldLastTransactionAt | 1<<FieldLastEmissionAt | 1<<FieldCumulatedEmission
	ReceiverFields FieldMask = 1<<FieldCreatedAt | 1<<FieldLastTransactionAt | 1<<FieldLastReceptionAt | 1<<FieldCumulatedReception
	allFields      FieldMask = 1<<FieldCount - 1
)

// MaskOf builds a mask from fields.
func MaskOf(fields ...Field) FieldMask {
	var m FieldMask
	for _, f := range fields {
		m = m.With(f)
	}
	return m
}

// MaskFromFlags builds a mask from exactly FieldCount flags ordered as the
// Field constants.
func MaskFromFlags(flags []bool) (FieldMask, error) {
	if len(flags) != FieldCount {
		return 0, ErrInvalidAuditConfiguration.WithMessage("field mask must have 6 flags")
	}
	var m FieldMask
	for i, set := range flags {
		if set {
			m = m.With(Field(i))
		}
	}
	return m, nil
}

// Has reports whether f is in the mask.
func (m FieldMask) Has(f Field) bool {
	if int(f) >= FieldCount {
		return false
	}
	return m&(1<<f) != 0
}

// With returns the mask with f added.
func (m FieldMask) With(f Field) FieldMask {
	if int(f) >= FieldCount {
		return m
	}
	return m | 1<<f
}

// Intersects reports whether any field of other is in m.
func (m FieldMask) Intersects(other FieldMask) bool {
	return m&other != 0
}

// SubsetOf reports whether every field of m is in other.
func (m FieldMask) SubsetOf(other FieldMask) bool {
	return m&^other == 0
}

// Flags expands the mask to FieldCount flags.
func (m FieldMask) Flags() []bool {
	flags := make([]bool, FieldCount)
	for i := range flags {
		flags[i] = m.Has(Field(i))
	}
	return flags
}

// AuditConfiguration describes what is recorded and limit-checked for a scope.
type AuditConfiguration struct {
	Scope         id.ScopeID
	Mode          AuditMode
	CurrencyIndex uint32
	StorageScope  StorageScope
	DataMask      FieldMask
	LimitMask     FieldMask
}

// NewAuditConfiguration validates and builds a configuration. A field can be
// recorded without being limit-checked, never the reverse.
func NewAuditConfiguration(scope id.ScopeID, mode AuditMode, currencyIndex uint32, storage StorageScope, dataMask, limitMask FieldMask) (*AuditConfiguration, error) {
	if !mode.IsValid() {
		return nil, ErrInvalidAuditConfiguration.WithMessage("invalid audit mode")
	}
	if !storage.IsValid() {
		return nil, ErrInvalidAuditConfiguration.WithMessage("invalid storage scope")
	}
	if !dataMask.SubsetOf(allFields) || !limitMask.SubsetOf(allFields) {
		return nil, ErrInvalidAuditConfiguration.WithMessage("mask references unknown fields")
	}
	if !limitMask.SubsetOf(dataMask) {
		return nil, ErrInvalidFieldLimitMask
	}
	return &AuditConfiguration{
		Scope:         scope,
		Mode:          mode,
		CurrencyIndex: currencyIndex,
		StorageScope:  storage,
		DataMask:      dataMask,
		LimitMask:     limitMask,
	}, nil
}

// Owner returns the address owning the scope's records for token.
func (c *AuditConfiguration) Owner(core, token common.Address) common.Address {
	if c.StorageScope == StoragePerToken {
		return token
	}
	return core
}

// AuditTriggers are the per-address flags used in triggers-only mode.
type AuditTriggers struct {
	Sender   bool
	Receiver bool
	Excluded bool
}

// AuditKey identifies one audit record.
type AuditKey struct {
	Owner common.Address
	Scope id.ScopeID
	User  id.UserID
}

// AuditRecord holds the running totals of one account under one scope.
// Timestamps are unix seconds; zero means never written.
type AuditRecord struct {
	CreatedAt          uint64
	LastTransactionAt  uint64
	LastEmissionAt     uint64
	LastReceptionAt    uint64
	CumulatedEmission  uint256.Int
	CumulatedReception uint256.Int
}

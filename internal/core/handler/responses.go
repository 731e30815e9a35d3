package handler

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tokencore/internal/core/models"
	"tokencore/internal/core/registry"
	audit "tokencore/pkg/platform/audit"
	"tokencore/pkg/platform/httputil"
)

// ResultResponse reports the evaluation code of a transfer or canTransfer.
type ResultResponse struct {
	Result     uint8  `json:"result"`
	ResultName string `json:"result_name"`
}

// DeniedResponse is the error body of a denied transfer.
type DeniedResponse struct {
	httputil.ErrorResponse
	ResultResponse
}

// AmountResponse carries one 256-bit amount as a decimal string.
type AmountResponse struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// DelegateResponse describes a registered delegate.
type DelegateResponse struct {
	ID     uint64   `json:"id"`
	Kind   string   `json:"kind"`
	Scopes []uint64 `json:"scopes"`
}

// AuditConfigurationResponse is the stored configuration of a scope.
type AuditConfigurationResponse struct {
	Scope         uint64 `json:"scope"`
	Mode          string `json:"mode"`
	CurrencyIndex uint32 `json:"currency_index"`
	Storage       string `json:"storage"`
	DataMask      []bool `json:"data_mask"`
	LimitMask     []bool `json:"limit_mask"`
}

// AuditRecordResponse is one user's running audit totals.
type AuditRecordResponse struct {
	Scope              uint64 `json:"scope"`
	User               uint64 `json:"user"`
	Recorded           bool   `json:"recorded"`
	CreatedAt          uint64 `json:"created_at"`
	LastTransactionAt  uint64 `json:"last_transaction_at"`
	LastEmissionAt     uint64 `json:"last_emission_at"`
	LastReceptionAt    uint64 `json:"last_reception_at"`
	CumulatedEmission  string `json:"cumulated_emission"`
	CumulatedReception string `json:"cumulated_reception"`
}

func toResult(code models.ResultCode) ResultResponse {
	return ResultResponse{Result: uint8(code), ResultName: code.String()}
}

func toAmount(token common.Address, amount *uint256.Int) *AmountResponse {
	return &AmountResponse{Token: token.Hex(), Amount: amount.Dec()}
}

func toDelegate(b registry.Binding) DelegateResponse {
	scopes := make([]uint64, len(b.Scopes))
	for i, sc := range b.Scopes {
		scopes[i] = uint64(sc)
	}
	return DelegateResponse{ID: uint64(b.ID), Kind: b.Delegate.Kind(), Scopes: scopes}
}

func toAuditConfiguration(cfg *models.AuditConfiguration) *AuditConfigurationResponse {
	return &AuditConfigurationResponse{
		Scope:         uint64(cfg.Scope),
		Mode:          cfg.Mode.String(),
		CurrencyIndex: cfg.CurrencyIndex,
		Storage:       cfg.StorageScope.String(),
		DataMask:      cfg.DataMask.Flags(),
		LimitMask:     cfg.LimitMask.Flags(),
	}
}

func toAuditRecord(scope, user uint64, rec *models.AuditRecord, recorded bool) *AuditRecordResponse {
	return &AuditRecordResponse{
		Scope:              scope,
		User:               user,
		Recorded:           recorded,
		CreatedAt:          rec.CreatedAt,
		LastTransactionAt:  rec.LastTransactionAt,
		LastEmissionAt:     rec.LastEmissionAt,
		LastReceptionAt:    rec.LastReceptionAt,
		CumulatedEmission:  rec.CumulatedEmission.Dec(),
		CumulatedReception: rec.CumulatedReception.Dec(),
	}
}

// EventResponse is one recorded audit event.
type EventResponse struct {
	ID           string    `json:"id"`
	Category     string    `json:"category"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Actor        string    `json:"actor,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Result       uint8     `json:"result,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

func toEvent(e audit.Event) EventResponse {
	return EventResponse{
		ID:           e.ID.String(),
		Category:     string(e.Category),
		Timestamp:    e.Timestamp,
		Action:       e.Action,
		Actor:        e.Actor,
		Subject:      e.Subject,
		Counterparty: e.Counterparty,
		Amount:       e.Amount,
		Result:       e.Result,
		Reason:       e.Reason,
	}
}

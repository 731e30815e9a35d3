package handler

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"tokencore/internal/core/models"
	id "tokencore/pkg/domain"
	dErrors "tokencore/pkg/domain-errors"
)

// Batches above this size are rejected before any parsing work.
const maxTriggerBatch = 1000

// DefineDelegateRequest is the body of PUT /delegates/{id}.
type DefineDelegateRequest struct {
	Kind   string   `json:"kind"`
	Scopes []uint64 `json:"scopes"`

	parsedScopes []id.ScopeID
}

func (r *DefineDelegateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Kind = strings.TrimSpace(r.Kind)
	if r.Kind == "" {
		return dErrors.New(dErrors.CodeValidation, "kind is required")
	}
	r.parsedScopes = make([]id.ScopeID, len(r.Scopes))
	for i, sc := range r.Scopes {
		r.parsedScopes[i] = id.ScopeID(sc)
	}
	return nil
}

func (r *DefineDelegateRequest) ParsedScopes() []id.ScopeID {
	return r.parsedScopes
}

// DefineProxyRequest is the body of PUT /proxies/{address}.
type DefineProxyRequest struct {
	DelegateID uint64 `json:"delegate_id"`
	Currency   string `json:"currency"`
}

func (r *DefineProxyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Currency = strings.TrimSpace(r.Currency)
	if len(r.Currency) > 16 {
		return dErrors.New(dErrors.CodeValidation, "currency must be at most 16 characters")
	}
	return nil
}

// AuditConfigurationRequest is the body of PUT /audit/scopes/{scope}.
type AuditConfigurationRequest struct {
	Mode          string `json:"mode"`
	CurrencyIndex uint32 `json:"currency_index"`
	Storage       string `json:"storage"`
	DataMask      []bool `json:"data_mask"`
	LimitMask     []bool `json:"limit_mask"`

	parsedMode    models.AuditMode
	parsedStorage models.StorageScope
}

func (r *AuditConfigurationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	mode, ok := models.ParseAuditMode(strings.TrimSpace(r.Mode))
	if !ok {
		return dErrors.New(dErrors.CodeValidation, "mode must be one of disabled, triggers_only, always")
	}
	r.parsedMode = mode

	storage := strings.TrimSpace(r.Storage)
	if storage == "" {
		storage = models.StoragePerCore.String()
	}
	scope, ok := models.ParseStorageScope(storage)
	if !ok {
		return dErrors.New(dErrors.CodeValidation, "storage must be per_core or per_token")
	}
	r.parsedStorage = scope

	if r.DataMask == nil {
		r.DataMask = make([]bool, models.FieldCount)
	}
	if r.LimitMask == nil {
		r.LimitMask = make([]bool, models.FieldCount)
	}
	return nil
}

func (r *AuditConfigurationRequest) ParsedMode() models.AuditMode {
	return r.parsedMode
}

func (r *AuditConfigurationRequest) ParsedStorage() models.StorageScope {
	return r.parsedStorage
}

// AuditTriggersRequest is the body of POST /audit/scopes/{scope}/triggers.
// The four lists are parallel.
type AuditTriggersRequest struct {
	Accounts  []string `json:"accounts"`
	Senders   []bool   `json:"senders"`
	Receivers []bool   `json:"receivers"`
	Excluded  []bool   `json:"excluded"`

	parsedAccounts []common.Address
}

func (r *AuditTriggersRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Accounts) > maxTriggerBatch {
		return dErrors.New(dErrors.CodeValidation, "too many accounts in one batch")
	}
	r.parsedAccounts = make([]common.Address, len(r.Accounts))
	for i, raw := range r.Accounts {
		addr, err := id.ParseAddress(raw)
		if err != nil {
			return err
		}
		r.parsedAccounts[i] = addr
	}
	return nil
}

func (r *AuditTriggersRequest) ParsedAccounts() []common.Address {
	return r.parsedAccounts
}

// MintRequest is the body of POST /tokens/{token}/mint.
type MintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`

	parsedTo     common.Address
	parsedAmount *uint256.Int
}

func (r *MintRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.parsedTo, err = parseAccount("to", r.To); err != nil {
		return err
	}
	r.parsedAmount, err = parseAmount(r.Amount)
	return err
}

// BurnRequest is the body of POST /tokens/{token}/burn.
type BurnRequest struct {
	From   string `json:"from"`
	Amount string `json:"amount"`

	parsedFrom   common.Address
	parsedAmount *uint256.Int
}

func (r *BurnRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.parsedFrom, err = parseAccount("from", r.From); err != nil {
		return err
	}
	r.parsedAmount, err = parseAmount(r.Amount)
	return err
}

// ApproveRequest is the body of POST /tokens/{token}/approve.
type ApproveRequest struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`

	parsedOwner   common.Address
	parsedSpender common.Address
	parsedAmount  *uint256.Int
}

func (r *ApproveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.parsedOwner, err = parseAccount("owner", r.Owner); err != nil {
		return err
	}
	if r.parsedSpender, err = parseAccount("spender", r.Spender); err != nil {
		return err
	}
	r.parsedAmount, err = parseAmount(r.Amount)
	return err
}

// TransferRequest is the body of POST /tokens/{token}/transfer and
// /transfer-from. Spender is required only for transfer-from.
type TransferRequest struct {
	Spender string `json:"spender,omitempty"`
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`

	parsedSpender common.Address
	parsedFrom    common.Address
	parsedTo      common.Address
	parsedAmount  *uint256.Int
}

func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.parsedFrom, err = parseAccount("from", r.From); err != nil {
		return err
	}
	if r.parsedTo, err = parseAccount("to", r.To); err != nil {
		return err
	}
	if strings.TrimSpace(r.Spender) != "" {
		if r.parsedSpender, err = parseAccount("spender", r.Spender); err != nil {
			return err
		}
	}
	r.parsedAmount, err = parseAmount(r.Amount)
	return err
}

// parseAccount accepts the null address; the delegate decides what it means
// for each role.
func parseAccount(field, raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	addr, err := id.ParseAddress(raw)
	if err != nil {
		return common.Address{}, dErrors.New(dErrors.CodeValidation, field+" must be a hex address")
	}
	return addr, nil
}

// parseAmount parses a base-10 amount of at most 256 bits.
func parseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	amount, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be a base-10 integer below 2^256")
	}
	return amount, nil
}

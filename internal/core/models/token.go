package models

import (
	"github.com/ethereum/go-ethereum/common"

	id "tokencore/pkg/domain"
)

// Token is a proxy registration: the proxy address is the token identity.
type Token struct {
	Address    common.Address
	DelegateID id.DelegateID
	// Currency is the token's own currency code, the source of rate conversion.
	Currency string
}

// Operation names a capability dispatched through the core.
type Operation string

const (
	OpMint         Operation = "mint"
	OpBurn         Operation = "burn"
	OpApprove      Operation = "approve"
	OpTransfer     Operation = "transfer"
	OpTransferFrom Operation = "transfer_from"
	OpCanTransfer  Operation = "can_transfer"
)

// ProxyOnly reports whether only the bound proxy may invoke op.
func (op Operation) ProxyOnly() bool {
	switch op {
	case OpApprove, OpTransfer, OpTransferFrom:
		return true
	}
	return false
}

// Mutates reports whether op writes core state.
func (op Operation) Mutates() bool {
	return op != OpCanTransfer
}

// IsValid checks if op is a known operation.
func (op Operation) IsValid() bool {
	switch op {
	case OpMint, OpBurn, OpApprove, OpTransfer, OpTransferFrom, OpCanTransfer:
		return true
	}
	return false
}

func (op Operation) String() string { return string(op) }

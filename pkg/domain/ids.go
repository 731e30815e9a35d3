// Package domain holds the primitive identifiers shared across the core.
//
// Identifiers are parsed at trust boundaries (HTTP, config) and carried as
// distinct types afterwards so a scope id can never be passed where a
// delegate id is expected.
package domain

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "tokencore/pkg/domain-errors"
)

// DelegateID identifies a rule module registered with the core.
type DelegateID uint64

// ScopeID identifies an audit configuration scope.
type ScopeID uint64

// UserID is the user-registry identifier of an account holder. Zero means
// "no user".
type UserID uint64

// NullAddress is the zero address.
var NullAddress = common.Address{}

func (d DelegateID) String() string { return strconv.FormatUint(uint64(d), 10) }
func (s ScopeID) String() string    { return strconv.FormatUint(uint64(s), 10) }
func (u UserID) String() string     { return strconv.FormatUint(uint64(u), 10) }

// IsNil reports whether the user id is unset.
func (u UserID) IsNil() bool { return u == 0 }

// IsNullAddress reports whether addr is the zero address.
func IsNullAddress(addr common.Address) bool {
	return addr == NullAddress
}

// ParseAddress parses a 0x-prefixed (or bare) 20-byte hex address.
// The null address parses successfully; callers decide whether it is allowed.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "invalid address: "+s)
	}
	return common.HexToAddress(s), nil
}

// ParseDelegateID parses a decimal delegate id.
func ParseDelegateID(s string) (DelegateID, error) {
	v, err := parseUint(s, "delegate id")
	return DelegateID(v), err
}

// ParseScopeID parses a decimal scope id.
func ParseScopeID(s string) (ScopeID, error) {
	v, err := parseUint(s, "scope id")
	return ScopeID(v), err
}

// ParseUserID parses a decimal user id. Zero is rejected.
func ParseUserID(s string) (UserID, error) {
	v, err := parseUint(s, "user id")
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "user id must be positive")
	}
	return UserID(v), nil
}

func parseUint(s, what string) (uint64, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what)
	}
	return v, nil
}

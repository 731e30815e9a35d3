package models

import (
	"fmt"

	dErrors "tokencore/pkg/domain-errors"
)

// Failure tags are stable and compared by callers; errors.Is matches on the tag.
var (
	ErrUnauthorizedCaller = dErrors.NewReason(dErrors.CodeForbidden, "CO01", "only the bound proxy may call this operation")
	ErrDelegateNotFound   = dErrors.NewReason(dErrors.CodeNotFound, "CO02", "delegate not found")
	ErrTransferDenied     = dErrors.NewReason(dErrors.CodeDenied, "CO03", "transfer denied by rule engine")
	ErrNullProxy          = dErrors.NewReason(dErrors.CodeInvalidInput, "CO04", "proxy address cannot be null")
	ErrUnknownDelegate    = dErrors.NewReason(dErrors.CodeNotFound, "CO05", "delegate has no implementation")
	ErrDelegateInUse      = dErrors.NewReason(dErrors.CodeConflict, "CO06", "delegate still has bound proxies")

	ErrInvalidFieldLimitMask     = dErrors.NewReason(dErrors.CodeValidation, "AU01", "limit mask requires the matching data field")
	ErrArityMismatch             = dErrors.NewReason(dErrors.CodeValidation, "AU02", "arity mismatch")
	ErrInvalidAuditConfiguration = dErrors.NewReason(dErrors.CodeValidation, "AU03", "invalid audit configuration")

	ErrInsufficientAllowance = dErrors.NewReason(dErrors.CodeDenied, "TK01", "insufficient allowance")
	ErrSupplyOverflow        = dErrors.NewReason(dErrors.CodeInvariantViolation, "TK02", "total supply overflow")
	ErrInsufficientBalance   = dErrors.NewReason(dErrors.CodeDenied, "TK03", "insufficient balance")
	ErrNullAccount           = dErrors.NewReason(dErrors.CodeInvalidInput, "TK04", "account cannot be null")
	ErrUnsupportedOperation  = dErrors.NewReason(dErrors.CodeBadRequest, "TK05", "unsupported operation")
)

// DeniedError is returned by the mutating paths when evaluation yields a code
// other than ResultOK. It matches ErrTransferDenied.
type DeniedError struct {
	Result ResultCode
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: result %d (%s)", ErrTransferDenied.Error(), uint8(e.Result), e.Result)
}

func (e *DeniedError) Unwrap() error {
	return ErrTransferDenied
}

// Deny builds the denial error for code.
func Deny(code ResultCode) error {
	return &DeniedError{Result: code}
}

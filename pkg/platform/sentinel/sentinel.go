package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and oracle adapters return
// these (optionally wrapped) so services can translate them into domain errors
// or result codes.
//
//   - ErrNotFound: entity does not exist in store
//   - ErrConflict: concurrent write lost, retry the unit of work
//   - ErrExpired: data is older than its allowed age (stale rate)
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrExpired     = errors.New("expired")
	ErrUnavailable = errors.New("unavailable")
)

package domain

import "errors"

// Error taxonomy of the engine. All of these are recoverable at the
// Resolver API boundary and returned as structured statuses; none should
// escape as an unhandled failure.
var (
	// ErrInvalidInput marks rejected input (unknown enum values, missing
	// required fields) at a store or service boundary.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrRuleOverlap is returned when an insert or supersede would create
	// two ACTIVE rules with overlapping validity intervals for the same
	// dimension key. Fatal to the writing operation; never resolved by
	// last write wins.
	ErrRuleOverlap = errors.New("overlapping active fee rule")

	// ErrSessionExpired is returned when a disambiguation session id
	// refers to state that no longer exists. Callers treat the follow-up
	// as a fresh, undisambiguated query.
	ErrSessionExpired = errors.New("disambiguation session expired")
)

// Package apperr defines the typed error taxonomy used throughout the
// engine (spec.md §7). Periodic drivers match these with errors.As at
// their boundary and log-and-continue; user-initiated operations let them
// propagate to the caller.
package apperr

import "fmt"

// ValidationError signals a bad input shape or an out-of-range value with
// no defined default to recover to.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field %q: %s", e.Field, e.Reason)
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound signals a referenced id does not exist.
type NotFound struct {
	Kind string
	ID   string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NewNotFound constructs a NotFound error.
func NewNotFound(kind, id string) *NotFound {
	return &NotFound{Kind: kind, ID: id}
}

// CapacityExceeded signals MAX_TOTAL_AGENTS or MAX_AGENTS_PER_SECTOR has
// been reached. The registry checks this inside the same
// atomicUpdate transform that performs the insert, to close the TOCTOU
// window a prior read-then-write would leave open.
type CapacityExceeded struct {
	Limit string
	Value int
}

func (e *CapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded: %s (limit %d)", e.Limit, e.Value)
}

// NewCapacityExceeded constructs a CapacityExceeded error.
func NewCapacityExceeded(limit string, value int) *CapacityExceeded {
	return &CapacityExceeded{Limit: limit, Value: value}
}

// IllegalStateTransition signals an attempt to move a DiscussionRoom
// backward, sideways, or to skip a state. Never silently swallowed.
type IllegalStateTransition struct {
	From string
	To   string
}

func (e *IllegalStateTransition) Error() string {
	return fmt.Sprintf("illegal state transition: %s -> %s", e.From, e.To)
}

// NewIllegalStateTransition constructs an IllegalStateTransition error.
func NewIllegalStateTransition(from, to string) *IllegalStateTransition {
	return &IllegalStateTransition{From: from, To: to}
}

// OracleUnavailable signals the oracle timed out, returned non-JSON, is
// disabled, or its circuit breaker is open. Triggers the fallback policy
// within collectArguments/generateAgentSignal; the discussion still
// progresses.
type OracleUnavailable struct {
	Reason string
}

func (e *OracleUnavailable) Error() string {
	return fmt.Sprintf("oracle unavailable: %s", e.Reason)
}

// NewOracleUnavailable constructs an OracleUnavailable error.
func NewOracleUnavailable(reason string) *OracleUnavailable {
	return &OracleUnavailable{Reason: reason}
}

// StorageFailure is fatal to the current operation. The driver records
// the error, aborts the current tick for the affected entity, and
// continues with the next.
type StorageFailure struct {
	Document string
	Cause    error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage failure on %q: %v", e.Document, e.Cause)
}

func (e *StorageFailure) Unwrap() error { return e.Cause }

// NewStorageFailure constructs a StorageFailure error.
func NewStorageFailure(document string, cause error) *StorageFailure {
	return &StorageFailure{Document: document, Cause: cause}
}

package services

import (
	"errors"
	"fmt"

	"safetrails/internal/repositories/interfaces"
)

// Caller-visible outcomes. The lifecycle managers and the sampler never
// swallow a guard violation; every one maps to exactly one of these.
var (
	// ErrNotFound: entity absent, or present but not owned by the caller.
	ErrNotFound = interfaces.ErrNotFound

	// ErrStateConflict: a conditional write lost the race. The entity is no
	// longer in the state the caller observed; re-read before retrying.
	ErrStateConflict = errors.New("state conflict")

	// ErrInvalidTripState: the operation is not permitted from the trip's
	// current state (a transition outside the table, or a report against a
	// trip that is not active).
	ErrInvalidTripState = errors.New("invalid trip state")

	// ErrAlreadyTerminal: idempotent no-op. The ticket reached a terminal
	// state earlier and the retried request changes nothing. Not surfaced to
	// callers as a failure.
	ErrAlreadyTerminal = errors.New("already terminal")

	// ErrStoreUnavailable: transient infrastructure fault, retryable.
	ErrStoreUnavailable = interfaces.ErrUnavailable
)

// ValidationError carries per-field messages for malformed input. Caller's
// fault, never retried automatically.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// AsValidationError unwraps err into a *ValidationError if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// storeErr translates store sentinels into caller outcomes: the generic
// conflict becomes a state conflict, everything else passes through.
func storeErr(err error) error {
	if errors.Is(err, interfaces.ErrConflict) {
		return ErrStateConflict
	}
	return err
}

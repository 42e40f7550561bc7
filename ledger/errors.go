/*
errors.go - Centralized error types for the debt engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers (API layer, tooling) classify errors with the helpers below.

ERROR CATEGORIES:
  1. Empty ledger  - a valid state, not a failure
  2. Not found     - requested row absent from store or state
  3. Invalid op    - deleting mid-history, cloning from a stale parent
  4. Validation    - field-level input problems, inconsistent debtor sets

USAGE:
  if errors.Is(err, ledger.ErrEmptyLedger) {
      // create the initial state first
  }

SEE ALSO:
  - graph.go:  returns ErrEmptyLedger, ErrInvalidOperation, StaleParentError
  - editor.go: returns ValidationError, InconsistentDebtorsError
*/
package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmptyLedger is returned when an instance has no states yet. This is
	// a valid condition, not a failure: callers create an initial state
	// before the first mutation.
	ErrEmptyLedger = errors.New("instance has no states")

	// ErrInstanceNotFound is returned when a referenced instance doesn't exist.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrPersonNotFound is returned when a referenced person doesn't exist
	// in the store or in the targeted state.
	ErrPersonNotFound = errors.New("person not found")

	// ErrDebtNotFound is returned when a referenced debt doesn't exist
	// in the store or in the targeted state.
	ErrDebtNotFound = errors.New("debt not found")

	// ErrStateNotFound is returned when a referenced state doesn't exist.
	ErrStateNotFound = errors.New("state not found")

	// ErrInvalidOperation is returned when an operation would corrupt the
	// snapshot graph: deleting a non-latest state, or mutating on top of a
	// parent that is no longer the latest.
	ErrInvalidOperation = errors.New("invalid operation on state graph")

	// ErrInconsistentDebtors is returned when a requested debtor set does
	// not fully resolve to known, non-retired people in the current state.
	ErrInconsistentDebtors = errors.New("inconsistent debtor set")

	// ErrValidation is returned when mutation input fails field validation
	// before any write is attempted.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StaleParentError reports a clone attempt whose expected parent is no
// longer the latest state of its instance.
type StaleParentError struct {
	Instance InstanceID
	Expected StateID
	Latest   StateID
}

func (e *StaleParentError) Error() string {
	return fmt.Sprintf("state %d is no longer the latest of instance %d (latest is %d)",
		e.Expected, e.Instance, e.Latest)
}

func (e *StaleParentError) Unwrap() error { return ErrInvalidOperation }

// InconsistentDebtorsError lists the debtor ids that failed to resolve.
type InconsistentDebtorsError struct {
	Missing []PersonID // not members of the state
	Retired []PersonID // members, but retired
}

func (e *InconsistentDebtorsError) Error() string {
	return fmt.Sprintf("inconsistent debtor set: missing %v, retired %v", e.Missing, e.Retired)
}

func (e *InconsistentDebtorsError) Unwrap() error { return ErrInconsistentDebtors }

// FieldError is one field-level validation problem.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// ValidationError carries every field-level problem found before any state
// mutation was attempted. Partially-applied clones cannot occur: if this is
// returned, nothing was written.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrPersonNotFound) ||
		errors.Is(err, ErrDebtNotFound) ||
		errors.Is(err, ErrStateNotFound)
}

// IsClientError returns true if the error is due to invalid client input
// rather than an engine or storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInconsistentDebtors) ||
		errors.Is(err, ErrInvalidOperation) ||
		IsNotFound(err)
}

/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The leave package and the store wrap these with extra context; the HTTP
  layer maps them to status codes with the helpers at the bottom.

ERROR CATEGORIES:
  1. Contract errors - a caller passed something the engine never accepts
     (a reversed date range)
  2. Lookup errors - a referenced employee or application does not exist
  3. Store errors - duplicate writes

  Validation failures are NOT errors in the engine: leave.Validate returns
  them as data. See leave/validate.go.

SEE ALSO:
  - date.go: WorkingDaysInclusive returns InvalidRangeError
  - leave/service.go: Wraps these errors with domain context
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when a range's start is after its end.
	ErrInvalidRange = errors.New("invalid range: start after end")

	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrApplicationNotFound is returned when a referenced application doesn't exist.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrInvalidStatus is returned for a status outside PENDING/APPROVED/REJECTED.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidCategory is returned for an unknown leave category.
	ErrInvalidCategory = errors.New("invalid leave category")

	// ErrInvalidInput is returned for missing or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateIdempotencyKey is returned when a journal entry with the same
	// idempotency key already exists. Expected on retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRangeError reports a reversed date range.
type InvalidRangeError struct {
	Start Date
	End   Date
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: start %s is after end %s", e.Start, e.End)
}

func (e *InvalidRangeError) Unwrap() error {
	return ErrInvalidRange
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrApplicationNotFound)
}

// IsConflict returns true for writes that collide with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey)
}

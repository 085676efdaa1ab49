/*
errors.go - Error types for the payroll engine

PURPOSE:
  Run-level errors are the ONLY errors this subsystem surfaces to
  callers. Accrual and reconciliation problems are self-healing; absent
  settings fall back through the resolution chain. What remains is the
  pair of failure modes of the payroll run itself: a concurrent run for
  the same teacher, and a persistence failure mid-run.

  Both are safe to retry: the marker never advances on failure, so a
  retried run cannot double-pay.

SEE ALSO:
  - run.go: Where these are produced
*/
package payroll

import (
	"errors"
	"fmt"

	"github.com/classledger/accrual-engine/attendance"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRunConflict is returned when a payroll run is already in
	// progress for the teacher. The losing invocation applies nothing.
	ErrRunConflict = errors.New("payroll run already in progress")

	// ErrRunFailed is returned when a run could not be committed. The
	// whole attempt rolled back; zero side effects.
	ErrRunFailed = errors.New("payroll run failed")

	// ErrWageNotFound is returned when voiding an unknown transaction.
	ErrWageNotFound = errors.New("wage transaction not found")

	// ErrDuplicateWage is returned when a wage transaction with the same
	// idempotency key already exists. Expected behavior for retries.
	ErrDuplicateWage = errors.New("duplicate wage idempotency key")

	// ErrSettingsNotFound is returned by stores for an absent settings
	// row. The resolver treats it as a fall-through, never an error.
	ErrSettingsNotFound = errors.New("payroll settings not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// RunFailedError carries the teacher and cause of a failed run.
type RunFailedError struct {
	TeacherID attendance.TeacherID
	Cause     error
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("payroll run for teacher %s failed: %v", e.TeacherID, e.Cause)
}

func (e *RunFailedError) Unwrap() error { return ErrRunFailed }

// IsRetryable reports whether a failed run is safe to attempt again.
// Always true for run-level errors: the marker only advances on commit.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRunConflict) || errors.Is(err, ErrRunFailed)
}

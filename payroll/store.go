/*
store.go - Persistence interfaces for settings, wages and run markers

PURPOSE:
  Defines what the payroll engine needs from the database. Wage
  transactions are append-only with one mutation exception (the admin
  void flag). The run marker is the paid-through cutoff per teacher; it
  advances exactly once per successful run, inside the same transaction
  as the wage writes.

TRANSACTIONAL BOUNDARY:
  TxRunStore.WithTx is the single place in the subsystem that needs
  atomicity: compute totals, write wage transactions, record the run,
  advance the marker - all or nothing. If fn returns an error the
  transaction rolls back and the marker stays put.

IMPLEMENTATIONS:
  - store/sqlite: production store

SEE ALSO:
  - run.go: The only writer of wage transactions
  - settings.go: Reader of SettingsStore
*/
package payroll

import (
	"context"
	"time"

	"github.com/classledger/accrual-engine/attendance"
)

// =============================================================================
// SETTINGS STORE
// =============================================================================

// SettingsStore persists payroll configuration rows. Period "" is the
// teacher's global row.
type SettingsStore interface {
	// SettingsFor returns the exact row for (teacher, period), or
	// ErrSettingsNotFound when absent. No fallback happens here; the
	// resolver owns the cascade.
	SettingsFor(ctx context.Context, teacher attendance.TeacherID, period string) (Settings, error)

	SaveSettings(ctx context.Context, teacher attendance.TeacherID, period string, s Settings) error
}

// =============================================================================
// WAGE STORE
// =============================================================================

// WageStore persists wage transactions. Append-only; the void flag is
// the single permitted mutation.
type WageStore interface {
	// AppendWages inserts transactions. Rows with an already-seen
	// idempotency key are rejected.
	AppendWages(ctx context.Context, txs []WageTransaction) error

	// WagesByStudent returns all wage transactions for a student+scope,
	// chronologically. Includes voided rows; callers filter for balance.
	WagesByStudent(ctx context.Context, student attendance.StudentID, scope attendance.ScopeKey) ([]WageTransaction, error)

	// VoidWage flips the void flag. Admin correction flow only. The
	// underlying time stays paid.
	VoidWage(ctx context.Context, id string) error

	// LastPayrollAt returns the timestamp of the teacher's most recent
	// type=payroll transaction. Fallback cutoff for legacy data that
	// predates explicit run markers.
	LastPayrollAt(ctx context.Context, teacher attendance.TeacherID) (time.Time, bool, error)
}

// =============================================================================
// MARKER STORE
// =============================================================================

// MarkerStore keeps the per-teacher paid-through cutoff. Anything before
// the marker is considered already paid and must never be recounted.
type MarkerStore interface {
	Marker(ctx context.Context, teacher attendance.TeacherID) (time.Time, bool, error)
	AdvanceMarker(ctx context.Context, teacher attendance.TeacherID, at time.Time) error
}

// =============================================================================
// RUN STORE - Everything a payroll run touches
// =============================================================================

type RunStore interface {
	WageStore
	MarkerStore

	// RecordRun persists the audit row for a completed run.
	RecordRun(ctx context.Context, rec RunRecord) error
}

// TxRunStore adds the transactional boundary around a run.
type TxRunStore interface {
	RunStore

	// WithTx executes fn atomically. If fn returns an error every write
	// made through the passed RunStore is rolled back.
	WithTx(ctx context.Context, fn func(RunStore) error) error
}

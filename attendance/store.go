/*
store.go - Persistence interfaces for tap events and enrollments

PURPOSE:
  Defines the interface between the attendance engine and the database.
  The EventStore keeps append-only semantics: tap events are inserted and
  queried, never updated - the single exception is the soft-delete flag
  used by the admin correction flow.

APPEND-ONLY CONTRACT:
  - AppendEvent(): insert one event
  - LoadEvents(): ordered read
  - SoftDeleteEvent(): flips IsDeleted only; the row itself survives
  - NO update methods exist

IMPLEMENTATIONS:
  - store/sqlite: production store
  - attendance/store: in-memory store for tests and dev

SEE ALSO:
  - ledger.go: Validating append path over this interface
  - reconcile.go: Read path
*/
package attendance

import (
	"context"
	"time"
)

// =============================================================================
// EVENT STORE
// =============================================================================

// EventStore persists tap events. Append-only plus soft delete.
type EventStore interface {
	// AppendEvent inserts one event. Fails with ErrDuplicateEventID if
	// the ID already exists.
	AppendEvent(ctx context.Context, ev TapEvent) error

	// LoadEvents returns non-deleted events for the key with
	// Timestamp >= from and Timestamp < before, ascending by timestamp.
	// A zero 'from' means no lower bound.
	LoadEvents(ctx context.Context, student StudentID, period string, scope ScopeKey, from, before time.Time) ([]TapEvent, error)

	// SoftDeleteEvent marks an event deleted so reconciliation skips it.
	// Admin correction flow only.
	SoftDeleteEvent(ctx context.Context, id string) error
}

// =============================================================================
// ENROLLMENT STORE
// =============================================================================

// EnrollmentStore tracks which (student, period, scope) units exist under
// a teacher. Upserted at the tap boundary; read by the payroll run
// processor to enumerate accrual candidates.
type EnrollmentStore interface {
	UpsertEnrollment(ctx context.Context, e Enrollment) error
	EnrollmentsByTeacher(ctx context.Context, teacher TeacherID) ([]Enrollment, error)
}

/*
ledger.go - Validating append path for tap events

PURPOSE:
  The EventLedger is the single write path for tap events. It normalizes
  timestamps to UTC, assigns IDs, validates the status value, and keeps
  the enrollment registry current so the payroll run processor can later
  enumerate every scope a teacher owes time for.

WHAT IT DOES NOT DO:
  It does NOT reject "dirty" sequences. A student tapping active twice in
  a row is accepted as-is; the reconciler recovers when it reads the
  stream back. Rejecting at the boundary would lose the signal entirely,
  which is worse than recording an anomaly.

SEE ALSO:
  - store.go: Underlying persistence interfaces
  - reconcile.go: The read-side recovery policy
*/
package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// EVENT LEDGER
// =============================================================================

// EventLedger wraps an EventStore with write-side validation.
type EventLedger struct {
	Events      EventStore
	Enrollments EnrollmentStore
	Clock       Clock
}

func NewEventLedger(events EventStore, enrollments EnrollmentStore, clock Clock) *EventLedger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &EventLedger{Events: events, Enrollments: enrollments, Clock: clock}
}

// RecordTap appends one tap event and upserts the student's enrollment.
// A zero Timestamp is stamped with the ledger clock; a missing ID is
// generated. The event is accepted regardless of whether it forms a
// clean alternating sequence with what came before.
func (l *EventLedger) RecordTap(ctx context.Context, teacher TeacherID, ev TapEvent) (TapEvent, error) {
	if ev.Status != TapActive && ev.Status != TapInactive {
		return TapEvent{}, ErrInvalidStatus
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.Clock.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC().Truncate(time.Second)

	if err := l.Events.AppendEvent(ctx, ev); err != nil {
		return TapEvent{}, err
	}

	if l.Enrollments != nil {
		err := l.Enrollments.UpsertEnrollment(ctx, Enrollment{
			StudentID: ev.StudentID,
			TeacherID: teacher,
			ScopeKey:  ev.ScopeKey,
			Period:    ev.Period,
		})
		if err != nil {
			return TapEvent{}, err
		}
	}
	return ev, nil
}

// Delete soft-deletes an event. Admin correction flow only; reconciliation
// skips deleted rows on the next read.
func (l *EventLedger) Delete(ctx context.Context, id string) error {
	return l.Events.SoftDeleteEvent(ctx, id)
}

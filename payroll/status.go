/*
status.go - Live session status for dashboard display

PURPOSE:
  Assembles the per-period status object the dashboard shows: whether the
  student is tapped in right now, how long the live session has run,
  whether they signed off "done for day", and the pay their unpaid time
  projects to at the resolved rate.

  Read-only and cheap: one reconciliation pass, no writes, no run
  processor involvement.

SEE ALSO:
  - attendance/reconcile.go: Session pairing
  - accrual.go: Unpaid seconds behind the projection
*/
package payroll

import (
	"context"
	"strings"
	"time"

	"github.com/classledger/accrual-engine/attendance"
)

// =============================================================================
// STATUS SERVICE
// =============================================================================

type StatusService struct {
	Calc  *Calculator
	Store RunStore
	Clock attendance.Clock
}

func NewStatusService(calc *Calculator, store RunStore, clock attendance.Clock) *StatusService {
	if clock == nil {
		clock = attendance.SystemClock{}
	}
	return &StatusService{Calc: calc, Store: store, Clock: clock}
}

// LiveStatus computes the display object for one student in one scope.
func (s *StatusService) LiveStatus(ctx context.Context, student attendance.StudentID, period string, scope attendance.ScopeKey, teacher attendance.TeacherID) (Status, error) {
	now := s.Clock.Now()

	res, err := s.Calc.Reconciler.Reconcile(ctx, student, period, scope, time.Time{}, now)
	if err != nil {
		return Status{}, err
	}

	var status Status
	if res.Open != nil {
		status.IsActive = true
		status.DurationSeconds = res.Open.Seconds(now)
	} else {
		status.IsDoneForDay = isDoneForDay(res.LastEndReason())
	}

	cutoff, err := CutoffFor(ctx, s.Store, teacher)
	if err != nil {
		return Status{}, err
	}

	unpaid, err := s.Calc.UnpaidSeconds(ctx, student, period, scope, teacher, cutoff)
	if err != nil {
		return Status{}, err
	}

	resolved, err := s.Calc.Resolver.Resolve(ctx, teacher, period)
	if err != nil {
		return Status{}, err
	}
	status.ProjectedPay = resolved.AmountFor(unpaid)

	return status, nil
}

func isDoneForDay(reason string) bool {
	return strings.EqualFold(strings.TrimSpace(reason), attendance.ReasonDoneForDay)
}

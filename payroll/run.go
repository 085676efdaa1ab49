/*
run.go - Atomic payroll run execution

PURPOSE:
  Orchestrates one payroll cycle for a teacher: enumerate enrollments,
  compute unpaid seconds per student per scope, convert to money via the
  resolved settings, write one wage transaction per student per scope,
  and advance the paid-through marker to "now" - all inside ONE
  transactional boundary. Either every write commits and the marker
  advances, or nothing does.

MUTUAL EXCLUSION:
  This is the only operation in the subsystem that needs it. A second
  concurrent run for the same teacher gets ErrRunConflict and applies
  nothing; it never silently partially applies. Different teachers run
  independently.

IDEMPOTENCY:
  Immediately after a successful run every student's unpaid seconds
  recompute to ~zero (the marker moved to the run instant), so re-running
  pays nothing and reports TotalAmount zero.

PAID IS ONE-WAY:
  Voiding a wage transaction afterwards changes balance display only. The
  marker does not move back; the underlying time is never repaid. Double
  pay is the greater risk.

SEE ALSO:
  - accrual.go: Second totals consumed here
  - store.go: The WithTx boundary
*/
package payroll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/classledger/accrual-engine/attendance"
	"github.com/classledger/accrual-engine/metrics"
)

// =============================================================================
// PROCESSOR
// =============================================================================

type Processor struct {
	Store       TxRunStore
	Calc        *Calculator
	Resolver    *Resolver
	Enrollments attendance.EnrollmentStore
	Clock       attendance.Clock
	Logger      *zap.Logger

	mu    sync.Mutex
	locks map[attendance.TeacherID]*sync.Mutex
}

func NewProcessor(store TxRunStore, calc *Calculator, resolver *Resolver, enrollments attendance.EnrollmentStore, clock attendance.Clock, logger *zap.Logger) *Processor {
	if clock == nil {
		clock = attendance.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		Store:       store,
		Calc:        calc,
		Resolver:    resolver,
		Enrollments: enrollments,
		Clock:       clock,
		Logger:      logger,
		locks:       make(map[attendance.TeacherID]*sync.Mutex),
	}
}

// Run executes one payroll cycle for the teacher.
func (p *Processor) Run(ctx context.Context, teacher attendance.TeacherID) (RunResult, error) {
	lock := p.teacherLock(teacher)
	if !lock.TryLock() {
		metrics.RunConflicts.Inc()
		return RunResult{}, ErrRunConflict
	}
	defer lock.Unlock()

	now := p.Clock.Now()
	runID := uuid.NewString()

	cutoff, err := CutoffFor(ctx, p.Store, teacher)
	if err != nil {
		return RunResult{}, p.failed(teacher, err)
	}

	enrollments, err := p.Enrollments.EnrollmentsByTeacher(ctx, teacher)
	if err != nil {
		return RunResult{}, p.failed(teacher, err)
	}

	var (
		wages []WageTransaction
		total = decimal.Zero
	)

	for _, e := range enrollments {
		secs, err := p.Calc.UnpaidSeconds(ctx, e.StudentID, e.Period, e.ScopeKey, teacher, cutoff)
		if err != nil {
			return RunResult{}, p.failed(teacher, err)
		}
		if secs == 0 {
			continue
		}

		resolved, err := p.Resolver.Resolve(ctx, teacher, e.Period)
		if err != nil {
			return RunResult{}, p.failed(teacher, err)
		}

		amount := resolved.AmountFor(secs)
		if !amount.IsPositive() {
			continue
		}

		wages = append(wages, WageTransaction{
			ID:          uuid.NewString(),
			StudentID:   e.StudentID,
			TeacherID:   teacher,
			ScopeKey:    e.ScopeKey,
			Period:      e.Period,
			Amount:      amount,
			Type:        TxTypePayroll,
			Timestamp:   now,
			Description: fmt.Sprintf("payroll for %d seconds", secs),
			IdempotencyKey: fmt.Sprintf("payroll|%s|%s|%s|%s",
				runID, e.StudentID, e.ScopeKey, e.Period),
		})
		total = total.Add(amount)
	}

	// All per-student writes plus the marker advance are one atomic unit.
	err = p.Store.WithTx(ctx, func(s RunStore) error {
		if len(wages) > 0 {
			if err := s.AppendWages(ctx, wages); err != nil {
				return err
			}
		}
		if err := s.RecordRun(ctx, RunRecord{
			RunID:        runID,
			TeacherID:    teacher,
			RunAt:        now,
			StudentsPaid: len(wages),
			TotalAmount:  total,
		}); err != nil {
			return err
		}
		return s.AdvanceMarker(ctx, teacher, now)
	})
	if err != nil {
		return RunResult{}, p.failed(teacher, err)
	}

	metrics.PayrollRuns.Inc()
	metrics.StudentsPaid.Add(float64(len(wages)))
	p.Logger.Info("payroll run committed",
		zap.String("teacher", string(teacher)),
		zap.String("run_id", runID),
		zap.Int("students_paid", len(wages)),
		zap.String("total", total.String()),
	)

	return RunResult{
		RunID:        runID,
		TeacherID:    teacher,
		StudentsPaid: len(wages),
		TotalAmount:  total,
		RunAt:        now,
	}, nil
}

// CutoffFor returns the teacher's paid-through timestamp: the explicit
// run marker, or for legacy data without one, the most recent payroll
// transaction. Zero when the teacher has never run payroll.
func CutoffFor(ctx context.Context, store RunStore, teacher attendance.TeacherID) (time.Time, error) {
	at, ok, err := store.Marker(ctx, teacher)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return at, nil
	}
	at, ok, err = store.LastPayrollAt(ctx, teacher)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return at, nil
	}
	return time.Time{}, nil
}

func (p *Processor) teacherLock(teacher attendance.TeacherID) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[teacher]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[teacher] = lock
	}
	return lock
}

func (p *Processor) failed(teacher attendance.TeacherID, cause error) error {
	metrics.RunFailures.Inc()
	p.Logger.Error("payroll run rolled back",
		zap.String("teacher", string(teacher)),
		zap.Error(cause),
	)
	return &RunFailedError{TeacherID: teacher, Cause: cause}
}

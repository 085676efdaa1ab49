package payroll_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classledger/accrual-engine/attendance"
	"github.com/classledger/accrual-engine/payroll"
	"github.com/classledger/accrual-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newProcessor(t *testing.T, store payroll.TxRunStore, sq *sqlite.Store, now time.Time) *payroll.Processor {
	t.Helper()
	clock := attendance.FixedClock{At: now}
	rec := attendance.NewReconciler(sq, clock)
	resolver := payroll.NewResolver(sq)
	calc := payroll.NewCalculator(rec, resolver, clock)
	return payroll.NewProcessor(store, calc, resolver, sq, clock, nil)
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestRun_RoundTrip_ThirtyMinutesAtQuarterPerMinute(t *testing.T) {
	// GIVEN: One student tapped 09:00-09:30 at $0.25/minute, round down
	// WHEN: Running payroll at 10:00
	// THEN: One transaction for exactly $7.50 and the marker moves to 10:00

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, accTeacher, "", rateSettings("0.25", payroll.UnitMinute)))
	recordTaps(t, store, "student-1",
		tap(attendance.TapActive, day(10, 9, 0)),
		tap(attendance.TapInactive, day(10, 9, 30)),
	)

	proc := newProcessor(t, store, store, day(10, 10, 0))
	result, err := proc.Run(ctx, accTeacher)
	require.NoError(t, err)

	assert.Equal(t, 1, result.StudentsPaid)
	assert.True(t, result.TotalAmount.Equal(decimal.RequireFromString("7.5")), result.TotalAmount.String())

	txs, err := store.WagesByStudent(ctx, "student-1", accScope)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, payroll.TxTypePayroll, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("7.5")))

	at, ok, err := store.Marker(ctx, accTeacher)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(10, 10, 0), at)
}

func TestRun_Idempotent_SecondRunPaysNothing(t *testing.T) {
	// GIVEN: A completed payroll run
	// WHEN: Running again with no new activity
	// THEN: Zero students paid, zero total, no new transactions

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, accTeacher, "", rateSettings("0.25", payroll.UnitMinute)))
	recordTaps(t, store, "student-1",
		tap(attendance.TapActive, day(10, 9, 0)),
		tap(attendance.TapInactive, day(10, 9, 30)),
	)

	proc := newProcessor(t, store, store, day(10, 10, 0))
	first, err := proc.Run(ctx, accTeacher)
	require.NoError(t, err)
	require.Equal(t, 1, first.StudentsPaid)

	// Same instant: everything before the marker is already paid
	second, err := proc.Run(ctx, accTeacher)
	require.NoError(t, err)
	assert.Equal(t, 0, second.StudentsPaid)
	assert.True(t, second.TotalAmount.IsZero())

	txs, err := store.WagesByStudent(ctx, "student-1", accScope)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestRun_NewActivityAfterRun_OnlyNewTimePaid(t *testing.T) {
	// GIVEN: A run at 10:00 covering a morning session
	// WHEN: The student works 11:00-11:20 and payroll runs again at 12:00
	// THEN: The second run pays only the 20 new minutes

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, accTeacher, "", rateSettings("0.25", payroll.UnitMinute)))
	recordTaps(t, store, "student-1",
		tap(attendance.TapActive, day(10, 9, 0)),
		tap(attendance.TapInactive, day(10, 9, 30)),
	)

	proc := newProcessor(t, store, store, day(10, 10, 0))
	_, err := proc.Run(ctx, accTeacher)
	require.NoError(t, err)

	recordTaps(t, store, "student-1",
		tap(attendance.TapActive, day(10, 11, 0)),
		tap(attendance.TapInactive, day(10, 11, 20)),
	)

	proc2 := newProcessor(t, store, store, day(10, 12, 0))
	second, err := proc2.Run(ctx, accTeacher)
	require.NoError(t, err)

	assert.Equal(t, 1, second.StudentsPaid)
	assert.True(t, second.TotalAmount.Equal(decimal.RequireFromString("5")), second.TotalAmount.String())
}

func TestRun_MultipleStudents_OneTransactionEach(t *testing.T) {
	// GIVEN: Two enrolled students with accrued time, one with none
	// WHEN: Running payroll
	// THEN: Exactly one transaction per student with time; zero-accrual
	//       students are skipped entirely

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, accTeacher, "", rateSettings("0.25", payroll.UnitMinute)))
	recordTaps(t, store, "student-1",
		tap(attendance.TapActive, day(10, 9, 0)),
		tap(attendance.TapInactive, day(10, 9, 30)),
	)
	recordTaps(t, store, "student-2",
		tap(attendance.TapActive, day(10, 9, 0)),
		tap(attendance.TapInactive, day(10, 10, 0)),
	)
	// student-3 is enrolled but never tapped in
	require.NoError(t, store.UpsertEnrollment(ctx, attendance.Enrollment{
		StudentID: "student-3",
		TeacherID: accTeacher,
		ScopeKey:  accScope,
		Period:    accPeriod,
	}))

	proc := newProcessor(t, store, store, day(10, 11, 0))
	result, err := proc.Run(ctx, accTeacher)
	require.NoError(t, err)

	assert.Equal(t, 2, result.StudentsPaid)
	assert.True(t, result.TotalAmount.Equal(decimal.RequireFromString("22.5")), result.TotalAmount.String())

	txs, err := store.WagesByStudent(ctx, "student-3", accScope)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

// =============================================================================
// ATOMICITY
// =============================================================================

// sabotagedStore forces the transactional callback to fail after all of the
// run's writes have gone through, proving they roll back together.
type sabotagedStore struct {
	*sqlite.Store
}

func (s *sabotagedStore) WithTx(ctx context.Context, fn func(payroll.RunStore) error) error {
	return s.Store.WithTx(ctx, func(rs payroll.RunStore) error {
		if err := fn(rs); err != nil {
			return err
		}
		return errors.New("storage failure after writes")
	})
}

func TestRun_CommitFails_NothingApplied(t *testing.T) {
	// GIVEN: A store that fails at the end of the run transaction
	// WHEN: Running payroll
	// THEN: No wage transactions exist and the marker never moved

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, accTeacher, "", rateSettings("0.25", payroll.UnitMinute)))
	recordTaps(t, store, "student-1",
		tap(attendance.TapActive, day(10, 9, 0)),
		tap(attendance.TapInactive, day(10, 9, 30)),
	)

	proc := newProcessor(t, &sabotagedStore{store}, store, day(10, 10, 0))
	_, err := proc.Run(ctx, accTeacher)
	require.Error(t, err)

	var failed *payroll.RunFailedError
	assert.ErrorAs(t, err, &failed)
	assert.ErrorIs(t, err, payroll.ErrRunFailed)

	txs, err := store.WagesByStudent(ctx, "student-1", accScope)
	require.NoError(t, err)
	assert.Empty(t, txs, "rolled-back wages must not be visible")

	_, ok, err := store.Marker(ctx, accTeacher)
	require.NoError(t, err)
	assert.False(t, ok, "marker must not advance on a failed run")

	// The failed run left nothing behind; a clean retry pays in full
	retry := newProcessor(t, store, store, day(10, 10, 0))
	result, err := retry.Run(ctx, accTeacher)
	require.NoError(t, err)
	assert.True(t, result.TotalAmount.Equal(decimal.RequireFromString("7.5")))
}

// blockingStore parks the run transaction until released, so a second run
// can be attempted while the first holds the teacher lock.
type blockingStore struct {
	*sqlite.Store
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) WithTx(ctx context.Context, fn func(payroll.RunStore) error) error {
	close(s.entered)
	<-s.release
	return s.Store.WithTx(ctx, fn)
}

func TestRun_ConcurrentSameTeacher_Conflict(t *testing.T) {
	// GIVEN: A payroll run in flight for a teacher
	// WHEN: A second run starts for the same teacher
	// THEN: The second gets ErrRunConflict and applies nothing

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, accTeacher, "", rateSettings("0.25", payroll.UnitMinute)))
	recordTaps(t, store, "student-1",
		tap(attendance.TapActive, day(10, 9, 0)),
		tap(attendance.TapInactive, day(10, 9, 30)),
	)

	blocking := &blockingStore{
		Store:   store,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	proc := newProcessor(t, blocking, store, day(10, 10, 0))

	done := make(chan error, 1)
	go func() {
		_, err := proc.Run(ctx, accTeacher)
		done <- err
	}()

	<-blocking.entered
	_, err := proc.Run(ctx, accTeacher)
	assert.ErrorIs(t, err, payroll.ErrRunConflict)

	close(blocking.release)
	require.NoError(t, <-done)

	txs, err := store.WagesByStudent(ctx, "student-1", accScope)
	require.NoError(t, err)
	assert.Len(t, txs, 1, "only the first run's transaction exists")
}

// =============================================================================
// VOID IS DISPLAY-ONLY
// =============================================================================

func TestRun_VoidedTransaction_TimeStaysPaid(t *testing.T) {
	// GIVEN: A completed run whose transaction an admin then voids
	// WHEN: Running payroll again
	// THEN: The voided time is NOT repaid; the marker already covers it

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSettings(ctx, accTeacher, "", rateSettings("0.25", payroll.UnitMinute)))
	recordTaps(t, store, "student-1",
		tap(attendance.TapActive, day(10, 9, 0)),
		tap(attendance.TapInactive, day(10, 9, 30)),
	)

	proc := newProcessor(t, store, store, day(10, 10, 0))
	_, err := proc.Run(ctx, accTeacher)
	require.NoError(t, err)

	txs, err := store.WagesByStudent(ctx, "student-1", accScope)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.NoError(t, store.VoidWage(ctx, txs[0].ID))

	later := newProcessor(t, store, store, day(10, 12, 0))
	second, err := later.Run(ctx, accTeacher)
	require.NoError(t, err)
	assert.Equal(t, 0, second.StudentsPaid)

	txs, err = store.WagesByStudent(ctx, "student-1", accScope)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Voided)
}

// =============================================================================
// CUTOFF RESOLUTION
// =============================================================================

func TestCutoffFor_MarkerWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AdvanceMarker(ctx, accTeacher, day(10, 10, 0)))

	at, err := payroll.CutoffFor(ctx, store, accTeacher)
	require.NoError(t, err)
	assert.Equal(t, day(10, 10, 0), at)
}

func TestCutoffFor_LegacyFallback_LastPayrollTransaction(t *testing.T) {
	// GIVEN: Payroll transactions but no explicit marker (legacy data)
	// WHEN: Resolving the cutoff
	// THEN: The most recent payroll transaction timestamp is used

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendWages(ctx, []payroll.WageTransaction{{
		ID:        "wage-1",
		StudentID: "student-1",
		TeacherID: accTeacher,
		ScopeKey:  accScope,
		Period:    accPeriod,
		Amount:    decimal.RequireFromString("5"),
		Type:      payroll.TxTypePayroll,
		Timestamp: day(9, 16, 0),
	}}))

	at, err := payroll.CutoffFor(ctx, store, accTeacher)
	require.NoError(t, err)
	assert.Equal(t, day(9, 16, 0), at)
}

func TestCutoffFor_NoHistory_Zero(t *testing.T) {
	store := newTestStore(t)
	at, err := payroll.CutoffFor(context.Background(), store, accTeacher)
	require.NoError(t, err)
	assert.True(t, at.IsZero())
}

package payroll_test

import (
	"context"
	"testing"

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

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func rateSettings(rate string, unit payroll.TimeUnit) payroll.Settings {
	s := payroll.DefaultSettings()
	s.PayRate = decimal.RequireFromString(rate)
	s.TimeUnit = unit
	return s
}

// =============================================================================
// CASCADE TESTS
// =============================================================================

func TestResolve_PeriodRow_WinsOverGlobal(t *testing.T) {
	// GIVEN: A teacher with a global row and a period-3 row
	// WHEN: Resolving period 3
	// THEN: The period row is used wholesale, tagged TierPeriod

	store := newTestStore(t)
	ctx := context.Background()
	teacher := attendance.TeacherID("teacher-1")

	require.NoError(t, store.SaveSettings(ctx, teacher, "", rateSettings("10", payroll.UnitHour)))
	require.NoError(t, store.SaveSettings(ctx, teacher, "3", rateSettings("0.25", payroll.UnitMinute)))

	resolver := payroll.NewResolver(store)
	resolved, err := resolver.Resolve(ctx, teacher, "3")
	require.NoError(t, err)

	assert.Equal(t, payroll.TierPeriod, resolved.Tier)
	assert.True(t, resolved.PayRate.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, payroll.UnitMinute, resolved.TimeUnit)
}

func TestResolve_UnrelatedPeriod_FallsToGlobal(t *testing.T) {
	// GIVEN: A teacher with a global row and a period-3 row
	// WHEN: Resolving period 5
	// THEN: The period-3 row is irrelevant; the global row applies

	store := newTestStore(t)
	ctx := context.Background()
	teacher := attendance.TeacherID("teacher-1")

	require.NoError(t, store.SaveSettings(ctx, teacher, "", rateSettings("10", payroll.UnitHour)))
	require.NoError(t, store.SaveSettings(ctx, teacher, "3", rateSettings("0.25", payroll.UnitMinute)))

	resolver := payroll.NewResolver(store)
	resolved, err := resolver.Resolve(ctx, teacher, "5")
	require.NoError(t, err)

	assert.Equal(t, payroll.TierGlobal, resolved.Tier)
	assert.True(t, resolved.PayRate.Equal(decimal.RequireFromString("10")))
}

func TestResolve_NoRows_SystemDefault(t *testing.T) {
	// GIVEN: A teacher with no settings rows at all
	// WHEN: Resolving any period
	// THEN: The system default applies: rate zero, round down, overtime off

	store := newTestStore(t)
	resolver := payroll.NewResolver(store)

	resolved, err := resolver.Resolve(context.Background(), "teacher-none", "3")
	require.NoError(t, err)

	assert.Equal(t, payroll.TierDefault, resolved.Tier)
	assert.True(t, resolved.PayRate.IsZero())
	assert.Equal(t, payroll.RoundDown, resolved.Rounding)
	assert.False(t, resolved.OvertimeEnabled)
}

func TestResolve_NoFieldMerge(t *testing.T) {
	// GIVEN: A period row with overtime off and a global row with overtime on
	// WHEN: Resolving the period
	// THEN: The period row is used whole; the global overtime does not leak in

	store := newTestStore(t)
	ctx := context.Background()
	teacher := attendance.TeacherID("teacher-1")

	global := rateSettings("10", payroll.UnitHour)
	global.OvertimeEnabled = true
	global.OvertimeThreshold = 8
	global.OvertimeUnit = payroll.UnitHour
	global.OvertimeWindow = payroll.OvertimePerDay
	require.NoError(t, store.SaveSettings(ctx, teacher, "", global))
	require.NoError(t, store.SaveSettings(ctx, teacher, "3", rateSettings("5", payroll.UnitHour)))

	resolver := payroll.NewResolver(store)
	resolved, err := resolver.Resolve(ctx, teacher, "3")
	require.NoError(t, err)

	assert.Equal(t, payroll.TierPeriod, resolved.Tier)
	assert.False(t, resolved.OvertimeEnabled)
	assert.True(t, resolved.PayRate.Equal(decimal.RequireFromString("5")))
}

// =============================================================================
// AMOUNT CONVERSION
// =============================================================================

func TestAmountFor_RoundDown(t *testing.T) {
	// 29.5 minutes at $0.25/min rounds down to 29 minutes
	s := rateSettings("0.25", payroll.UnitMinute)
	amount := s.AmountFor(29*60 + 30)
	assert.True(t, amount.Equal(decimal.RequireFromString("7.25")), amount.String())
}

func TestAmountFor_RoundUp(t *testing.T) {
	// 29.5 minutes at $0.25/min rounds up to 30 minutes
	s := rateSettings("0.25", payroll.UnitMinute)
	s.Rounding = payroll.RoundUp
	amount := s.AmountFor(29*60 + 30)
	assert.True(t, amount.Equal(decimal.RequireFromString("7.5")), amount.String())
}

func TestAmountFor_ExactUnits_NoRoundingEffect(t *testing.T) {
	s := rateSettings("0.25", payroll.UnitMinute)
	down := s.AmountFor(1800)
	s.Rounding = payroll.RoundUp
	up := s.AmountFor(1800)
	assert.True(t, down.Equal(up))
	assert.True(t, down.Equal(decimal.RequireFromString("7.5")))
}

func TestAmountFor_ZeroOrNegativeSeconds_Zero(t *testing.T) {
	s := rateSettings("10", payroll.UnitHour)
	assert.True(t, s.AmountFor(0).IsZero())
	assert.True(t, s.AmountFor(-100).IsZero())
}

func TestRatePerSecond_Normalization(t *testing.T) {
	// $0.25/minute and $15/hour normalize to the same per-second rate
	perMinute := rateSettings("0.25", payroll.UnitMinute)
	perHour := rateSettings("15", payroll.UnitHour)
	assert.True(t, perMinute.RatePerSecond().Equal(perHour.RatePerSecond()))
}

func TestOvertimeThresholdSeconds_DisabledIsZero(t *testing.T) {
	s := rateSettings("10", payroll.UnitHour)
	s.OvertimeThreshold = 8
	s.OvertimeUnit = payroll.UnitHour
	assert.Equal(t, int64(0), s.OvertimeThresholdSeconds())

	s.OvertimeEnabled = true
	assert.Equal(t, int64(8*3600), s.OvertimeThresholdSeconds())
}

/*
Package payroll converts reconciled attendance time into wage ledger
entries.

PURPOSE:
  This package owns everything downstream of the session reconciler:
  per-teacher payroll settings resolution, the unpaid-accrual calculator,
  and the atomic payroll run processor that writes wage transactions and
  advances the paid-through marker.

KEY CONCEPTS IN THIS FILE (types.go):
  - Settings: A teacher's payroll configuration (rate, rounding, overtime)
  - WageTransaction: An immutable ledger entry paying a student
  - RunResult/RunRecord: Outcome and audit trail of one payroll cycle

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all money - never float
  2. Normalization: rates convert to amount-per-second once, at
     resolution time; downstream code never branches on time unit
  3. One-way paid state: once time is covered by a run marker it is
     never recounted, even if the resulting transaction is voided

SEE ALSO:
  - settings.go: Cascading settings resolution
  - accrual.go: Unpaid seconds since the last run
  - run.go: Atomic run execution
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/classledger/accrual-engine/attendance"
)

// =============================================================================
// TIME UNITS AND ROUNDING
// =============================================================================

type TimeUnit string

const (
	UnitSecond TimeUnit = "second"
	UnitMinute TimeUnit = "minute"
	UnitHour   TimeUnit = "hour"
)

// Seconds returns the unit length. Unknown units fall back to one second
// so a corrupt settings row degrades to exact-time pay instead of a crash.
func (u TimeUnit) Seconds() int64 {
	switch u {
	case UnitMinute:
		return 60
	case UnitHour:
		return 3600
	default:
		return 1
	}
}

type RoundingMode string

const (
	RoundDown RoundingMode = "down"
	RoundUp   RoundingMode = "up"
)

// OvertimeWindow is the accounting period an overtime threshold applies to.
type OvertimeWindow string

const (
	OvertimePerDay   OvertimeWindow = "day"
	OvertimePerWeek  OvertimeWindow = "week"
	OvertimePerMonth OvertimeWindow = "month"
)

type PayScheduleType string

const (
	ScheduleWeekly   PayScheduleType = "weekly"
	ScheduleBiweekly PayScheduleType = "biweekly"
	ScheduleMonthly  PayScheduleType = "monthly"
	ScheduleCustom   PayScheduleType = "custom"
)

// =============================================================================
// SETTINGS - One teacher's payroll configuration row
// =============================================================================

// Settings is one payroll configuration row, owned by (teacher, period).
// Period "" is the teacher's global row. Resolution uses whichever row is
// found wholesale - there is no field-level merge.
type Settings struct {
	PayRate  decimal.Decimal // amount per TimeUnit
	TimeUnit TimeUnit
	Rounding RoundingMode

	OvertimeEnabled   bool
	OvertimeThreshold int64 // in OvertimeUnit units
	OvertimeUnit      TimeUnit
	OvertimeWindow    OvertimeWindow

	// MaxSecondsPerDay caps one day's countable time. Zero means no cap.
	MaxSecondsPerDay int64

	Schedule           PayScheduleType
	CustomIntervalDays int
	FirstPayDate       time.Time
}

// DefaultSettings is the documented system fallback when a teacher has no
// settings row at all: rate zero, round down, overtime off.
func DefaultSettings() Settings {
	return Settings{
		PayRate:  decimal.Zero,
		TimeUnit: UnitHour,
		Rounding: RoundDown,
		Schedule: ScheduleWeekly,
	}
}

// RatePerSecond normalizes the configured rate to amount-per-second so
// calculators never branch on the configured time unit.
func (s Settings) RatePerSecond() decimal.Decimal {
	return s.PayRate.Div(decimal.NewFromInt(s.TimeUnit.Seconds()))
}

// OvertimeThresholdSeconds returns the overtime cap in seconds, or zero
// when overtime accounting is disabled.
func (s Settings) OvertimeThresholdSeconds() int64 {
	if !s.OvertimeEnabled {
		return 0
	}
	return s.OvertimeThreshold * s.OvertimeUnit.Seconds()
}

// AmountFor converts a second total into money. Applied ONCE to a total,
// never per interval, so rounding error cannot compound: seconds round to
// whole time units per the rounding mode, then multiply by the rate.
func (s Settings) AmountFor(seconds int64) decimal.Decimal {
	if seconds <= 0 {
		return decimal.Zero
	}
	unit := s.TimeUnit.Seconds()
	units := seconds / unit
	if s.Rounding == RoundUp && seconds%unit != 0 {
		units++
	}
	return s.PayRate.Mul(decimal.NewFromInt(units))
}

// =============================================================================
// SETTINGS RESOLUTION RESULT
// =============================================================================

// SettingsTier records which lookup tier produced the effective settings.
type SettingsTier string

const (
	TierPeriod  SettingsTier = "period"
	TierGlobal  SettingsTier = "global"
	TierDefault SettingsTier = "default"
)

// Resolved is the effective configuration plus its provenance tag.
type Resolved struct {
	Settings
	Tier SettingsTier
}

// =============================================================================
// WAGE TRANSACTION - Append-only ledger entry
// =============================================================================

const TxTypePayroll = "payroll"

// WageTransaction pays a student for accrued time. Written exclusively by
// the run processor, never deleted. The void flag is the single mutation
// allowed (admin correction flow) and affects balance display only -
// voiding never re-opens the underlying time for repayment.
type WageTransaction struct {
	ID             string
	StudentID      attendance.StudentID
	TeacherID      attendance.TeacherID
	ScopeKey       attendance.ScopeKey
	Period         string
	Amount         decimal.Decimal
	Type           string
	Timestamp      time.Time
	Description    string
	Voided         bool
	IdempotencyKey string
}

// =============================================================================
// RUN RESULT AND HISTORY
// =============================================================================

// RunResult summarizes one payroll cycle for the admin trigger.
type RunResult struct {
	RunID        string
	TeacherID    attendance.TeacherID
	StudentsPaid int
	TotalAmount  decimal.Decimal
	RunAt        time.Time
}

// RunRecord is the persisted audit row for a completed run.
type RunRecord struct {
	RunID        string
	TeacherID    attendance.TeacherID
	RunAt        time.Time
	StudentsPaid int
	TotalAmount  decimal.Decimal
}

// =============================================================================
// LIVE STATUS - Dashboard view object
// =============================================================================

// Status is the read-only view consumed by dashboard and payroll display
// routes. Computed fresh per request; never bolted onto stored entities.
type Status struct {
	IsActive        bool
	IsDoneForDay    bool
	DurationSeconds int64
	ProjectedPay    decimal.Decimal
}

/*
accrual.go - Unpaid time since the last payroll run

PURPOSE:
  Computes the seconds a student is owed for, per scope, since the
  paid-through cutoff. This is the calculation the "no double pay, no
  lost time" guarantees hang on:

  - Only time in [cutoff, now) counts. An interval spanning the cutoff
    contributes ONLY its portion on or after the cutoff - the pre-cutoff
    seconds were covered by the previous run.
  - The live open session counts up to "now".
  - A brand-new student whose first tap happened after the cutoff is
    credited for exactly that time, no matter how much unrelated history
    other students accumulated before the cutoff.
  - Daily caps and overtime thresholds apply once, to bucketed totals -
    never per interval - so clamping cannot compound.

SEE ALSO:
  - attendance/reconcile.go: Produces the intervals clipped here
  - run.go: Converts the resulting seconds into money
*/
package payroll

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/classledger/accrual-engine/attendance"
)

// =============================================================================
// CALCULATOR
// =============================================================================

type Calculator struct {
	Reconciler *attendance.Reconciler
	Resolver   *Resolver
	Clock      attendance.Clock
}

func NewCalculator(rec *attendance.Reconciler, resolver *Resolver, clock attendance.Clock) *Calculator {
	if clock == nil {
		clock = attendance.SystemClock{}
	}
	return &Calculator{Reconciler: rec, Resolver: resolver, Clock: clock}
}

// UnpaidSeconds returns the capped, clipped seconds owed to one student in
// one scope since the cutoff. Never negative. A zero cutoff means no
// payroll run has happened yet and all time counts.
func (c *Calculator) UnpaidSeconds(ctx context.Context, student attendance.StudentID, period string, scope attendance.ScopeKey, teacher attendance.TeacherID, cutoff time.Time) (int64, error) {
	now := c.Clock.Now()

	// Full history: intervals spanning the cutoff must be seen whole so
	// the clip happens here, not by dropping their opening events.
	res, err := c.Reconciler.Reconcile(ctx, student, period, scope, time.Time{}, now)
	if err != nil {
		return 0, err
	}

	resolved, err := c.Resolver.Resolve(ctx, teacher, period)
	if err != nil {
		return 0, err
	}

	intervals := res.Closed
	if res.Open != nil {
		intervals = append(intervals, *res.Open)
	}

	// Bucket clipped seconds by UTC day so daily caps and overtime
	// windows apply to totals.
	days := make(map[time.Time]int64)
	for _, iv := range intervals {
		addClippedByDay(days, iv, cutoff, now)
	}

	return capBuckets(days, resolved.Settings), nil
}

// addClippedByDay splits an interval's clipped portion at UTC midnight
// boundaries and accumulates per-day seconds.
func addClippedByDay(days map[time.Time]int64, iv attendance.Interval, cutoff, now time.Time) {
	start := iv.Start
	if start.Before(cutoff) {
		start = cutoff
	}
	end := now
	if iv.End != nil && iv.End.Before(now) {
		end = *iv.End
	}
	if !start.Before(end) {
		return
	}

	for start.Before(end) {
		day := truncateDay(start)
		next := day.Add(24 * time.Hour)
		segEnd := end
		if next.Before(segEnd) {
			segEnd = next
		}
		days[day] += int64(segEnd.Sub(start).Seconds())
		start = segEnd
	}
}

// capBuckets applies the daily cap, then the overtime threshold per
// accounting window, and sums.
func capBuckets(days map[time.Time]int64, s Settings) int64 {
	if s.MaxSecondsPerDay > 0 {
		for day, secs := range days {
			if secs > s.MaxSecondsPerDay {
				days[day] = s.MaxSecondsPerDay
			}
		}
	}

	threshold := s.OvertimeThresholdSeconds()
	if threshold <= 0 {
		var total int64
		for _, secs := range days {
			total += secs
		}
		return total
	}

	// Group days into accounting windows and cap each window's total.
	windows := make(map[string]int64)
	keys := make([]time.Time, 0, len(days))
	for day := range days {
		keys = append(keys, day)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	for _, day := range keys {
		wk := windowKey(day, s.OvertimeWindow)
		remaining := threshold - windows[wk]
		if remaining <= 0 {
			continue
		}
		secs := days[day]
		if secs > remaining {
			secs = remaining
		}
		windows[wk] += secs
	}

	var total int64
	for _, secs := range windows {
		total += secs
	}
	return total
}

func windowKey(day time.Time, w OvertimeWindow) string {
	switch w {
	case OvertimePerWeek:
		year, week := day.ISOWeek()
		return fmt.Sprintf("w:%d-%d", year, week)
	case OvertimePerMonth:
		return fmt.Sprintf("m:%d-%d", day.Year(), int(day.Month()))
	default:
		return "d:" + day.Format("2006-01-02")
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

/*
Package attendance provides the core tap-event engine.

PURPOSE:
  This package contains the types and algorithms that turn a raw,
  append-only stream of "tap in / tap out" events into time intervals:
  closed sessions for payroll accrual and one live open session for
  dashboard display.

KEY CONCEPTS IN THIS FILE (types.go):
  - TapEvent: An immutable ledger entry recording a tap in or tap out
  - Interval: A derived span of active time (closed or still open)
  - ScopeKey: The tenant-isolation unit (a class's join code)
  - Enrollment: A student's membership in one scope under a teacher

DESIGN PRINCIPLES:
  1. Immutability: Tap events are never updated, only soft-deleted
  2. Derivation: Intervals are computed from events, never persisted
  3. Tolerance: Malformed event sequences are recovered, not rejected
  4. Explicitness: Every operation takes (student, period, scope) -
     there is no ambient "current class" state

SEE ALSO:
  - reconcile.go: Pairs events into intervals
  - ledger.go: Append path with validation
  - store.go: Persistence interfaces
*/
package attendance

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type TeacherID string

// ScopeKey partitions a student's activity into one distinct class economy.
// Two classes under the same teacher have different scope keys.
type ScopeKey string

// =============================================================================
// TAP EVENT - Append-only attendance signal
// =============================================================================

type TapStatus string

const (
	TapActive   TapStatus = "active"
	TapInactive TapStatus = "inactive"
)

// ReasonDoneForDay is the conventional tap-out reason students send when
// they are finished for the day. Surfaced on the live status object.
const ReasonDoneForDay = "done for day"

// TapEvent is one row of the attendance ledger.
//
// INVARIANTS:
//   - Immutable once written; admin corrections set IsDeleted, nothing else.
//   - Events for a (student, period, scope) key are interpreted in
//     timestamp order. Consecutive duplicate actives are a data anomaly
//     the reconciler recovers from, not an error.
type TapEvent struct {
	ID        string
	StudentID StudentID
	ScopeKey  ScopeKey
	Period    string
	Status    TapStatus
	Timestamp time.Time // always UTC
	Reason    string
	IsDeleted bool
}

// =============================================================================
// INTERVAL - Derived session span (never persisted)
// =============================================================================

// Interval is a span of tapped-in time derived from paired events.
// End == nil means the session is still open; its duration is computed
// against "now" at query time.
type Interval struct {
	StudentID StudentID
	ScopeKey  ScopeKey
	Period    string
	Start     time.Time
	End       *time.Time
	EndReason string

	// Anomalous marks intervals synthesized while recovering from a
	// malformed event sequence (duplicate active). Always zero-length.
	Anomalous bool
}

func (iv Interval) IsOpen() bool { return iv.End == nil }

// Seconds returns the interval duration, clamped to zero. Open intervals
// are measured against now. Durations are always recomputed from the
// interval's own timestamps; legacy rows with garbage stored durations
// get a sane value here.
func (iv Interval) Seconds(now time.Time) int64 {
	end := now
	if iv.End != nil {
		end = *iv.End
	}
	d := end.Sub(iv.Start)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// ClippedSeconds returns the portion of the interval that falls within
// [from, to). An interval spanning 'from' contributes only its tail.
func (iv Interval) ClippedSeconds(from, to time.Time) int64 {
	start := iv.Start
	if start.Before(from) {
		start = from
	}
	end := to
	if iv.End != nil && iv.End.Before(to) {
		end = *iv.End
	}
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// =============================================================================
// ENROLLMENT - Student membership in one scope under a teacher
// =============================================================================

// Enrollment links a student to a (teacher, period, scope) unit. The
// payroll run processor enumerates these to find accrual candidates.
type Enrollment struct {
	StudentID StudentID
	TeacherID TeacherID
	ScopeKey  ScopeKey
	Period    string
}

// =============================================================================
// CLOCK - Injected time source
// =============================================================================

// Clock abstracts "now" so reconciliation and accrual are testable
// against fixed times.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the real wall-clock time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. For tests.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

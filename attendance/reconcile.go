/*
reconcile.go - Tolerant pairing of tap events into session intervals

PURPOSE:
  Walks the ordered event stream for one (student, period, scope) key and
  pairs active -> inactive events into closed intervals. A trailing
  unmatched active is the live open session, measured against "now".

TOLERANT PAIRING POLICY:
  Real tap streams are dirty: double tap-ins, orphaned tap-outs, legacy
  rows with garbage timestamps. The reconciler recovers from all of them
  locally and NEVER returns an error for a malformed sequence:

  - active while a start is already pending: the stale start is closed as
    a zero-duration anomalous interval the moment the new active arrives.
    The time between the two actives cannot be trusted (the student was
    most likely never tapped out), so it is not credited. The new active
    becomes the pending start.
  - inactive with no pending start: discarded. It cannot erase an
    existing result and it must not crash reconciliation.
  - closed interval whose end precedes its start: duration clamps to zero
    (Interval.Seconds recomputes from raw timestamps).

ANOMALY POLICY:
  Whether recovered anomalies are kept for admin review or silently
  dropped is configurable. AnomalyRecord reports them on the result and
  logs each one; AnomalyDiscard drops them after recovery.

SEE ALSO:
  - types.go: Interval and clipping helpers
  - payroll/accrual.go: Consumes reconciled intervals for unpaid time
*/
package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ANOMALY POLICY
// =============================================================================

type AnomalyPolicy string

const (
	// AnomalyDiscard silently drops recovered anomalies after repair.
	AnomalyDiscard AnomalyPolicy = "discard"

	// AnomalyRecord keeps recovered anomalies on the result and logs them
	// for admin review.
	AnomalyRecord AnomalyPolicy = "record"
)

type AnomalyKind string

const (
	AnomalyDuplicateActive AnomalyKind = "duplicate_active"
	AnomalyOrphanInactive  AnomalyKind = "orphan_inactive"
)

// Anomaly is one recovered irregularity in the event stream.
type Anomaly struct {
	Kind  AnomalyKind
	Event TapEvent
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler pairs tap events into intervals. Read-only and cheap; the
// dashboard calls it once per live status request.
type Reconciler struct {
	Events EventStore
	Clock  Clock
	Policy AnomalyPolicy
	Logger *zap.Logger
}

func NewReconciler(events EventStore, clock Clock) *Reconciler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Reconciler{Events: events, Clock: clock, Policy: AnomalyDiscard}
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Closed []Interval
	// Open is the live session (end pending), nil when the student is
	// tapped out. Its duration is computed against "now" at query time.
	Open      *Interval
	Anomalies []Anomaly
}

// Reconcile pairs events for the key within [windowStart, windowEnd).
// A zero windowStart means the full history; a zero windowEnd means now.
// Malformed sequences are recovered per the tolerant policy, never
// reported as errors.
func (r *Reconciler) Reconcile(ctx context.Context, student StudentID, period string, scope ScopeKey, windowStart, windowEnd time.Time) (Result, error) {
	if windowEnd.IsZero() {
		windowEnd = r.Clock.Now()
	}

	events, err := r.Events.LoadEvents(ctx, student, period, scope, windowStart, windowEnd)
	if err != nil {
		return Result{}, err
	}

	var (
		res     Result
		pending *TapEvent
	)

	for i := range events {
		ev := events[i]
		switch ev.Status {
		case TapActive:
			if pending != nil {
				// Stale start: close it zero-length where it began.
				res.record(r, Anomaly{Kind: AnomalyDuplicateActive, Event: *pending})
				start := pending.Timestamp
				res.Closed = append(res.Closed, Interval{
					StudentID: student,
					ScopeKey:  scope,
					Period:    period,
					Start:     start,
					End:       &start,
					Anomalous: true,
				})
			}
			pending = &events[i]

		case TapInactive:
			if pending == nil {
				res.record(r, Anomaly{Kind: AnomalyOrphanInactive, Event: ev})
				continue
			}
			end := ev.Timestamp
			res.Closed = append(res.Closed, Interval{
				StudentID: student,
				ScopeKey:  scope,
				Period:    period,
				Start:     pending.Timestamp,
				End:       &end,
				EndReason: ev.Reason,
			})
			pending = nil
		}
	}

	if pending != nil {
		res.Open = &Interval{
			StudentID: student,
			ScopeKey:  scope,
			Period:    period,
			Start:     pending.Timestamp,
		}
	}

	return res, nil
}

// record applies the anomaly policy: keep and log, or drop.
func (res *Result) record(r *Reconciler, a Anomaly) {
	if r.Policy != AnomalyRecord {
		return
	}
	res.Anomalies = append(res.Anomalies, a)
	if r.Logger != nil {
		r.Logger.Warn("recovered tap anomaly",
			zap.String("kind", string(a.Kind)),
			zap.String("student", string(a.Event.StudentID)),
			zap.String("scope", string(a.Event.ScopeKey)),
			zap.String("period", a.Event.Period),
			zap.Time("at", a.Event.Timestamp),
		)
	}
}

// MeaningfulClosed returns closed intervals excluding zero-length
// anomalous repairs. Display surfaces use this.
func (res Result) MeaningfulClosed() []Interval {
	out := make([]Interval, 0, len(res.Closed))
	for _, iv := range res.Closed {
		if iv.Anomalous {
			continue
		}
		out = append(out, iv)
	}
	return out
}

// LastEndReason returns the end reason of the most recent closed interval,
// or "" when there is none. Drives the done-for-day display flag.
func (res Result) LastEndReason() string {
	for i := len(res.Closed) - 1; i >= 0; i-- {
		if !res.Closed[i].Anomalous {
			return res.Closed[i].EndReason
		}
	}
	return ""
}

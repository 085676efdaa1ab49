/*
settings.go - Cascading payroll settings resolution

PURPOSE:
  Resolves the effective payroll configuration for (teacher, period).
  The lookup is a whole-row cascade, never a field merge:

    1. period-specific row for (teacher, period)
    2. the teacher's global row (period "")
    3. the documented system default (rate 0, round down, overtime off)

  The result carries a tier tag saying which rung was used, so tests and
  audit surfaces can see provenance instead of duck-typing nil checks.

SEE ALSO:
  - types.go: Settings, Resolved, DefaultSettings
  - accrual.go / run.go: Consumers
*/
package payroll

import (
	"context"
	"errors"

	"github.com/classledger/accrual-engine/attendance"
)

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	Store SettingsStore
}

func NewResolver(store SettingsStore) *Resolver {
	return &Resolver{Store: store}
}

// Resolve returns the effective settings for (teacher, period). A missing
// row is never an error; the cascade always terminates at the system
// default.
func (r *Resolver) Resolve(ctx context.Context, teacher attendance.TeacherID, period string) (Resolved, error) {
	if period != "" {
		s, err := r.Store.SettingsFor(ctx, teacher, period)
		if err == nil {
			return Resolved{Settings: s, Tier: TierPeriod}, nil
		}
		if !errors.Is(err, ErrSettingsNotFound) {
			return Resolved{}, err
		}
	}

	s, err := r.Store.SettingsFor(ctx, teacher, "")
	if err == nil {
		return Resolved{Settings: s, Tier: TierGlobal}, nil
	}
	if !errors.Is(err, ErrSettingsNotFound) {
		return Resolved{}, err
	}

	return Resolved{Settings: DefaultSettings(), Tier: TierDefault}, nil
}

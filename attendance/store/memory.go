// Package store provides in-memory implementations of the attendance
// persistence interfaces, for tests and local development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/classledger/accrual-engine/attendance"
)

// =============================================================================
// MEMORY EVENT STORE
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	events      map[key][]attendance.TapEvent
	byID        map[string]*attendance.TapEvent
	enrollments map[enrollKey]attendance.Enrollment
}

type key struct {
	Student attendance.StudentID
	Period  string
	Scope   attendance.ScopeKey
}

type enrollKey struct {
	Student attendance.StudentID
	Period  string
	Scope   attendance.ScopeKey
}

func NewMemory() *Memory {
	return &Memory{
		events:      make(map[key][]attendance.TapEvent),
		byID:        make(map[string]*attendance.TapEvent),
		enrollments: make(map[enrollKey]attendance.Enrollment),
	}
}

// AppendEvent inserts an event in timestamp order. Append-only.
func (m *Memory) AppendEvent(_ context.Context, ev attendance.TapEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[ev.ID]; exists {
		return attendance.ErrDuplicateEventID
	}

	k := key{Student: ev.StudentID, Period: ev.Period, Scope: ev.ScopeKey}
	evs := m.events[k]

	// Binary search keeps the slice ordered without re-sorting on read.
	i := sort.Search(len(evs), func(i int) bool {
		return evs[i].Timestamp.After(ev.Timestamp)
	})
	evs = append(evs, attendance.TapEvent{})
	copy(evs[i+1:], evs[i:])
	evs[i] = ev
	m.events[k] = evs

	// Inserting may reallocate; re-point every ID for this key.
	for j := range m.events[k] {
		m.byID[m.events[k][j].ID] = &m.events[k][j]
	}
	return nil
}

// LoadEvents returns non-deleted events with from <= Timestamp < before.
func (m *Memory) LoadEvents(_ context.Context, student attendance.StudentID, period string, scope attendance.ScopeKey, from, before time.Time) ([]attendance.TapEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{Student: student, Period: period, Scope: scope}
	var out []attendance.TapEvent
	for _, ev := range m.events[k] {
		if ev.IsDeleted {
			continue
		}
		if !from.IsZero() && ev.Timestamp.Before(from) {
			continue
		}
		if !ev.Timestamp.Before(before) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *Memory) SoftDeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.byID[id]
	if !ok {
		return attendance.ErrEventNotFound
	}
	ev.IsDeleted = true
	return nil
}

// =============================================================================
// MEMORY ENROLLMENT STORE
// =============================================================================

func (m *Memory) UpsertEnrollment(_ context.Context, e attendance.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := enrollKey{Student: e.StudentID, Period: e.Period, Scope: e.ScopeKey}
	m.enrollments[k] = e
	return nil
}

func (m *Memory) EnrollmentsByTeacher(_ context.Context, teacher attendance.TeacherID) ([]attendance.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []attendance.Enrollment
	for _, e := range m.enrollments {
		if e.TeacherID == teacher {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].ScopeKey < out[j].ScopeKey
	})
	return out, nil
}

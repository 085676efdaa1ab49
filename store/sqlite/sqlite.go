/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements attendance.EventStore, attendance.EnrollmentStore,
  payroll.SettingsStore and payroll.TxRunStore on one database. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - tap_events: INSERT plus the soft-delete flag update; nothing else
  - wage_transactions: INSERT plus the void flag update; nothing else
  - No DELETE statements exist on either table

KEY TABLES:
  tap_events:        Immutable attendance ledger
  enrollments:       (student, period, scope) units per teacher
  payroll_settings:  Per-teacher configuration rows (period '' = global)
  wage_transactions: Immutable wage ledger
  payroll_markers:   Paid-through cutoff per teacher
  payroll_runs:      Audit rows for committed runs

TRANSACTIONAL BOUNDARY:
  WithTx wraps a payroll run's writes (wages + run record + marker) in a
  single SQLite transaction. If the callback errors, everything rolls
  back and the marker stays where it was.

WAL MODE:
  The database opens with WAL so live-status reads don't block the
  payroll writer.

USAGE:
  db, err := sqlite.New("./data/ledger.db")   // or ":memory:"

SEE ALSO:
  - attendance/store.go, payroll/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/classledger/accrual-engine/attendance"
	"github.com/classledger/accrual-engine/payroll"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Tap events (append-only attendance ledger)
	CREATE TABLE IF NOT EXISTS tap_events (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		scope_key TEXT NOT NULL,
		period TEXT NOT NULL,
		status TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		reason TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Hot path: ordered reconciliation reads per key
	CREATE INDEX IF NOT EXISTS idx_tap_events_key_ts
		ON tap_events(student_id, period, scope_key, timestamp);

	-- Enrollments ((student, period, scope) units per teacher)
	CREATE TABLE IF NOT EXISTS enrollments (
		student_id TEXT NOT NULL,
		teacher_id TEXT NOT NULL,
		scope_key TEXT NOT NULL,
		period TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (student_id, period, scope_key)
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_teacher
		ON enrollments(teacher_id);

	-- Payroll settings (period '' = the teacher's global row)
	CREATE TABLE IF NOT EXISTS payroll_settings (
		teacher_id TEXT NOT NULL,
		period TEXT NOT NULL DEFAULT '',
		pay_rate TEXT NOT NULL,
		time_unit TEXT NOT NULL,
		rounding TEXT NOT NULL,
		overtime_enabled INTEGER NOT NULL DEFAULT 0,
		overtime_threshold INTEGER NOT NULL DEFAULT 0,
		overtime_unit TEXT NOT NULL DEFAULT 'hour',
		overtime_window TEXT NOT NULL DEFAULT 'day',
		max_seconds_per_day INTEGER NOT NULL DEFAULT 0,
		schedule TEXT NOT NULL DEFAULT 'weekly',
		custom_interval_days INTEGER NOT NULL DEFAULT 0,
		first_pay_date TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (teacher_id, period)
	);

	-- Wage transactions (append-only wage ledger)
	CREATE TABLE IF NOT EXISTS wage_transactions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		teacher_id TEXT NOT NULL,
		scope_key TEXT NOT NULL,
		period TEXT NOT NULL,
		amount TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		description TEXT,
		voided INTEGER NOT NULL DEFAULT 0,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wages_student_scope
		ON wage_transactions(student_id, scope_key, timestamp);
	CREATE INDEX IF NOT EXISTS idx_wages_teacher_type
		ON wage_transactions(teacher_id, tx_type, timestamp DESC);

	-- Paid-through cutoff per teacher
	CREATE TABLE IF NOT EXISTS payroll_markers (
		teacher_id TEXT PRIMARY KEY,
		last_run_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Run audit trail
	CREATE TABLE IF NOT EXISTS payroll_runs (
		run_id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL,
		run_at TEXT NOT NULL,
		students_paid INTEGER NOT NULL,
		total_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_runs_teacher
		ON payroll_runs(teacher_id, run_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// EVENT STORE (attendance.EventStore interface)
// =============================================================================

func (s *Store) AppendEvent(ctx context.Context, ev attendance.TapEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEvent(ctx, s.db, ev)
}

func appendEvent(ctx context.Context, db dbtx, ev attendance.TapEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tap_events
		(id, student_id, scope_key, period, status, timestamp, reason, is_deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.StudentID, ev.ScopeKey, ev.Period, ev.Status,
		ev.Timestamp.UTC().Format(time.RFC3339), ev.Reason,
		boolToInt(ev.IsDeleted), now(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return attendance.ErrDuplicateEventID
		}
		return fmt.Errorf("failed to append tap event: %w", err)
	}
	return nil
}

func (s *Store) LoadEvents(ctx context.Context, student attendance.StudentID, period string, scope attendance.ScopeKey, from, before time.Time) ([]attendance.TapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, student_id, scope_key, period, status, timestamp, reason, is_deleted
		FROM tap_events
		WHERE student_id = ? AND period = ? AND scope_key = ?
		  AND is_deleted = 0 AND timestamp < ?`
	args := []any{student, period, scope, before.UTC().Format(time.RFC3339)}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY timestamp ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tap events: %w", err)
	}
	defer rows.Close()

	var events []attendance.TapEvent
	for rows.Next() {
		var (
			ev      attendance.TapEvent
			ts      string
			reason  sql.NullString
			deleted int
		)
		if err := rows.Scan(&ev.ID, &ev.StudentID, &ev.ScopeKey, &ev.Period,
			&ev.Status, &ts, &reason, &deleted); err != nil {
			return nil, fmt.Errorf("failed to scan tap event: %w", err)
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339, ts)
		ev.Reason = reason.String
		ev.IsDeleted = deleted != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) SoftDeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE tap_events SET is_deleted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete tap event: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return attendance.ErrEventNotFound
	}
	return nil
}

// =============================================================================
// ENROLLMENT STORE (attendance.EnrollmentStore interface)
// =============================================================================

func (s *Store) UpsertEnrollment(ctx context.Context, e attendance.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (student_id, teacher_id, scope_key, period, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(student_id, period, scope_key) DO UPDATE SET
			teacher_id = excluded.teacher_id`,
		e.StudentID, e.TeacherID, e.ScopeKey, e.Period, now(),
	)
	return err
}

func (s *Store) EnrollmentsByTeacher(ctx context.Context, teacher attendance.TeacherID) ([]attendance.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, teacher_id, scope_key, period
		FROM enrollments WHERE teacher_id = ?
		ORDER BY student_id, scope_key, period`, teacher)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attendance.Enrollment
	for rows.Next() {
		var e attendance.Enrollment
		if err := rows.Scan(&e.StudentID, &e.TeacherID, &e.ScopeKey, &e.Period); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SETTINGS STORE (payroll.SettingsStore interface)
// =============================================================================

func (s *Store) SettingsFor(ctx context.Context, teacher attendance.TeacherID, period string) (payroll.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		cfg          payroll.Settings
		rate         string
		otEnabled    int
		firstPayDate sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT pay_rate, time_unit, rounding, overtime_enabled, overtime_threshold,
		       overtime_unit, overtime_window, max_seconds_per_day, schedule,
		       custom_interval_days, first_pay_date
		FROM payroll_settings WHERE teacher_id = ? AND period = ?`,
		teacher, period,
	).Scan(&rate, &cfg.TimeUnit, &cfg.Rounding, &otEnabled, &cfg.OvertimeThreshold,
		&cfg.OvertimeUnit, &cfg.OvertimeWindow, &cfg.MaxSecondsPerDay, &cfg.Schedule,
		&cfg.CustomIntervalDays, &firstPayDate)

	if err == sql.ErrNoRows {
		return payroll.Settings{}, payroll.ErrSettingsNotFound
	}
	if err != nil {
		return payroll.Settings{}, err
	}

	cfg.PayRate, err = decimal.NewFromString(rate)
	if err != nil {
		return payroll.Settings{}, fmt.Errorf("corrupt pay_rate %q: %w", rate, err)
	}
	cfg.OvertimeEnabled = otEnabled != 0
	if firstPayDate.Valid && firstPayDate.String != "" {
		cfg.FirstPayDate, _ = time.Parse(time.RFC3339, firstPayDate.String)
	}
	return cfg, nil
}

func (s *Store) SaveSettings(ctx context.Context, teacher attendance.TeacherID, period string, cfg payroll.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstPay any
	if !cfg.FirstPayDate.IsZero() {
		firstPay = cfg.FirstPayDate.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payroll_settings
		(teacher_id, period, pay_rate, time_unit, rounding, overtime_enabled,
		 overtime_threshold, overtime_unit, overtime_window, max_seconds_per_day,
		 schedule, custom_interval_days, first_pay_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(teacher_id, period) DO UPDATE SET
			pay_rate = excluded.pay_rate,
			time_unit = excluded.time_unit,
			rounding = excluded.rounding,
			overtime_enabled = excluded.overtime_enabled,
			overtime_threshold = excluded.overtime_threshold,
			overtime_unit = excluded.overtime_unit,
			overtime_window = excluded.overtime_window,
			max_seconds_per_day = excluded.max_seconds_per_day,
			schedule = excluded.schedule,
			custom_interval_days = excluded.custom_interval_days,
			first_pay_date = excluded.first_pay_date,
			updated_at = excluded.updated_at`,
		teacher, period, cfg.PayRate.String(), cfg.TimeUnit, cfg.Rounding,
		boolToInt(cfg.OvertimeEnabled), cfg.OvertimeThreshold, cfg.OvertimeUnit,
		cfg.OvertimeWindow, cfg.MaxSecondsPerDay, cfg.Schedule,
		cfg.CustomIntervalDays, firstPay, now(),
	)
	return err
}

// =============================================================================
// WAGE STORE (payroll.WageStore interface)
// =============================================================================

func (s *Store) AppendWages(ctx context.Context, txs []payroll.WageTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendWages(ctx, s.db, txs)
}

func appendWages(ctx context.Context, db dbtx, txs []payroll.WageTransaction) error {
	for _, tx := range txs {
		_, err := db.ExecContext(ctx, `
			INSERT INTO wage_transactions
			(id, student_id, teacher_id, scope_key, period, amount, tx_type,
			 timestamp, description, voided, idempotency_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tx.ID, tx.StudentID, tx.TeacherID, tx.ScopeKey, tx.Period,
			tx.Amount.String(), tx.Type, tx.Timestamp.UTC().Format(time.RFC3339),
			tx.Description, boolToInt(tx.Voided),
			nullString(tx.IdempotencyKey), now(),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return payroll.ErrDuplicateWage
			}
			return fmt.Errorf("failed to append wage transaction: %w", err)
		}
	}
	return nil
}

func (s *Store) WagesByStudent(ctx context.Context, student attendance.StudentID, scope attendance.ScopeKey) ([]payroll.WageTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, teacher_id, scope_key, period, amount, tx_type,
		       timestamp, description, voided, idempotency_key
		FROM wage_transactions
		WHERE student_id = ? AND scope_key = ?
		ORDER BY timestamp ASC, created_at ASC`,
		student, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.WageTransaction
	for rows.Next() {
		var (
			tx     payroll.WageTransaction
			amount string
			ts     string
			desc   sql.NullString
			voided int
			idem   sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.StudentID, &tx.TeacherID, &tx.ScopeKey,
			&tx.Period, &amount, &tx.Type, &ts, &desc, &voided, &idem); err != nil {
			return nil, err
		}
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		tx.Timestamp, _ = time.Parse(time.RFC3339, ts)
		tx.Description = desc.String
		tx.Voided = voided != 0
		tx.IdempotencyKey = idem.String
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) VoidWage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE wage_transactions SET voided = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to void wage transaction: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return payroll.ErrWageNotFound
	}
	return nil
}

func (s *Store) LastPayrollAt(ctx context.Context, teacher attendance.TeacherID) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastPayrollAt(ctx, s.db, teacher)
}

func lastPayrollAt(ctx context.Context, db dbtx, teacher attendance.TeacherID) (time.Time, bool, error) {
	var ts sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM wage_transactions
		WHERE teacher_id = ? AND tx_type = ?`,
		teacher, payroll.TxTypePayroll,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid || ts.String == "" {
		return time.Time{}, false, nil
	}
	at, err := time.Parse(time.RFC3339, ts.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// =============================================================================
// MARKER STORE (payroll.MarkerStore interface)
// =============================================================================

func (s *Store) Marker(ctx context.Context, teacher attendance.TeacherID) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return marker(ctx, s.db, teacher)
}

func marker(ctx context.Context, db dbtx, teacher attendance.TeacherID) (time.Time, bool, error) {
	var ts string
	err := db.QueryRowContext(ctx,
		`SELECT last_run_at FROM payroll_markers WHERE teacher_id = ?`,
		teacher,
	).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

func (s *Store) AdvanceMarker(ctx context.Context, teacher attendance.TeacherID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return advanceMarker(ctx, s.db, teacher, at)
}

func advanceMarker(ctx context.Context, db dbtx, teacher attendance.TeacherID, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payroll_markers (teacher_id, last_run_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(teacher_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			updated_at = excluded.updated_at`,
		teacher, at.UTC().Format(time.RFC3339), now(),
	)
	return err
}

// =============================================================================
// RUN STORE (payroll.RunStore interface)
// =============================================================================

func (s *Store) RecordRun(ctx context.Context, rec payroll.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordRun(ctx, s.db, rec)
}

func recordRun(ctx context.Context, db dbtx, rec payroll.RunRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payroll_runs (run_id, teacher_id, run_at, students_paid, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.TeacherID, rec.RunAt.UTC().Format(time.RFC3339),
		rec.StudentsPaid, rec.TotalAmount.String(), now(),
	)
	return err
}

// RunsByTeacher returns the run audit trail, newest first.
func (s *Store) RunsByTeacher(ctx context.Context, teacher attendance.TeacherID) ([]payroll.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, teacher_id, run_at, students_paid, total_amount
		FROM payroll_runs WHERE teacher_id = ?
		ORDER BY run_at DESC`, teacher)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payroll.RunRecord
	for rows.Next() {
		var (
			rec    payroll.RunRecord
			runAt  string
			amount string
		)
		if err := rows.Scan(&rec.RunID, &rec.TeacherID, &runAt, &rec.StudentsPaid, &amount); err != nil {
			return nil, err
		}
		rec.RunAt, _ = time.Parse(time.RFC3339, runAt)
		rec.TotalAmount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt total_amount %q: %w", amount, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (payroll.TxRunStore interface)
// =============================================================================

// WithTx executes fn within one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(payroll.RunStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every RunStore call through the open transaction. The
// outer WithTx holds the store mutex, so no locking happens here.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendWages(ctx context.Context, txs []payroll.WageTransaction) error {
	return appendWages(ctx, ts.tx, txs)
}

func (ts *txStore) WagesByStudent(ctx context.Context, student attendance.StudentID, scope attendance.ScopeKey) ([]payroll.WageTransaction, error) {
	return nil, fmt.Errorf("WagesByStudent not supported inside a run transaction")
}

func (ts *txStore) VoidWage(ctx context.Context, id string) error {
	return fmt.Errorf("VoidWage not supported inside a run transaction")
}

func (ts *txStore) LastPayrollAt(ctx context.Context, teacher attendance.TeacherID) (time.Time, bool, error) {
	return lastPayrollAt(ctx, ts.tx, teacher)
}

func (ts *txStore) Marker(ctx context.Context, teacher attendance.TeacherID) (time.Time, bool, error) {
	return marker(ctx, ts.tx, teacher)
}

func (ts *txStore) AdvanceMarker(ctx context.Context, teacher attendance.TeacherID, at time.Time) error {
	return advanceMarker(ctx, ts.tx, teacher, at)
}

func (ts *txStore) RecordRun(ctx context.Context, rec payroll.RunRecord) error {
	return recordRun(ctx, ts.tx, rec)
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

/*
handlers.go - HTTP handlers for the accrual engine's collaborator surfaces

PURPOSE:
  Exposes the engine at its collaborator boundaries. The engine itself is
  a library; this layer only parses, delegates and serializes.

ENDPOINTS:
  Taps:
    POST   /api/taps                 Record a tap in/out
    DELETE /api/taps/{id}            Soft-delete an event (admin)

  Status:
    GET    /api/status               Live session status for one student

  Settings:
    GET    /api/settings             Resolved settings (with tier tag)
    PUT    /api/settings             Save a settings row

  Payroll:
    POST   /api/payroll/run          Trigger a payroll run
    GET    /api/payroll/runs         Run history for a teacher

  Transactions:
    GET    /api/transactions         Wage transactions for student+scope
    POST   /api/transactions/{id}/void  Admin void (display only)

ERROR HANDLING:
  - 400: Missing/invalid input
  - 404: Unknown event or transaction
  - 409: Concurrent payroll run for the same teacher
  - 500: Storage failures, rolled-back runs

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/classledger/accrual-engine/attendance"
	"github.com/classledger/accrual-engine/metrics"
	"github.com/classledger/accrual-engine/payroll"
	"github.com/classledger/accrual-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *attendance.EventLedger
	Status    *payroll.StatusService
	Processor *payroll.Processor
	Resolver  *payroll.Resolver
	Store     *sqlite.Store
	Logger    *zap.Logger
}

func NewHandler(store *sqlite.Store, clock attendance.Clock, policy attendance.AnomalyPolicy, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := attendance.NewReconciler(store, clock)
	rec.Policy = policy
	rec.Logger = logger

	resolver := payroll.NewResolver(store)
	calc := payroll.NewCalculator(rec, resolver, clock)

	return &Handler{
		Ledger:    attendance.NewEventLedger(store, store, clock),
		Status:    payroll.NewStatusService(calc, store, clock),
		Processor: payroll.NewProcessor(store, calc, resolver, store, clock, logger),
		Resolver:  resolver,
		Store:     store,
		Logger:    logger,
	}
}

// =============================================================================
// TAP HANDLERS
// =============================================================================

// RecordTap accepts a tap in/out. Dirty sequences are accepted; the
// reconciler recovers on read.
func (h *Handler) RecordTap(w http.ResponseWriter, r *http.Request) {
	var req TapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.StudentID == "" || req.TeacherID == "" || req.ScopeKey == "" || req.Period == "" {
		writeError(w, http.StatusBadRequest, "student_id, teacher_id, scope_key and period are required", nil)
		return
	}

	ev, err := h.Ledger.RecordTap(r.Context(), attendance.TeacherID(req.TeacherID), attendance.TapEvent{
		StudentID: attendance.StudentID(req.StudentID),
		ScopeKey:  attendance.ScopeKey(req.ScopeKey),
		Period:    req.Period,
		Status:    attendance.TapStatus(req.Status),
		Reason:    req.Reason,
	})
	if errors.Is(err, attendance.ErrInvalidStatus) {
		writeError(w, http.StatusBadRequest, "status must be active or inactive", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record tap", err)
		return
	}

	metrics.TapEvents.Inc()
	writeJSON(w, http.StatusCreated, TapEventDTO{
		ID:        ev.ID,
		StudentID: string(ev.StudentID),
		ScopeKey:  string(ev.ScopeKey),
		Period:    ev.Period,
		Status:    string(ev.Status),
		Timestamp: ev.Timestamp,
		Reason:    ev.Reason,
	})
}

// DeleteTap soft-deletes an event. Admin correction flow.
func (h *Handler) DeleteTap(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.Ledger.Delete(r.Context(), id)
	if errors.Is(err, attendance.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, "Event not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STATUS HANDLER
// =============================================================================

// GetStatus returns the live session status for one student in one scope.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	student := q.Get("student_id")
	teacher := q.Get("teacher_id")
	scope := q.Get("scope_key")
	period := q.Get("period")
	if student == "" || teacher == "" || scope == "" || period == "" {
		writeError(w, http.StatusBadRequest, "student_id, teacher_id, scope_key and period are required", nil)
		return
	}

	status, err := h.Status.LiveStatus(r.Context(),
		attendance.StudentID(student), period,
		attendance.ScopeKey(scope), attendance.TeacherID(teacher))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute status", err)
		return
	}

	writeJSON(w, http.StatusOK, StatusDTO{
		IsActive:        status.IsActive,
		IsDoneForDay:    status.IsDoneForDay,
		DurationSeconds: status.DurationSeconds,
		ProjectedPay:    status.ProjectedPay.String(),
	})
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// GetSettings returns the resolved settings for (teacher, period) with
// the tier that produced them.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	teacher := r.URL.Query().Get("teacher_id")
	period := r.URL.Query().Get("period")
	if teacher == "" {
		writeError(w, http.StatusBadRequest, "teacher_id is required", nil)
		return
	}

	resolved, err := h.Resolver.Resolve(r.Context(), attendance.TeacherID(teacher), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsDTO(resolved))
}

// SaveSettings upserts one settings row for (teacher, period).
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	teacher := r.URL.Query().Get("teacher_id")
	period := r.URL.Query().Get("period")
	if teacher == "" {
		writeError(w, http.StatusBadRequest, "teacher_id is required", nil)
		return
	}

	var dto SettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cfg, err := settingsFromDTO(dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err)
		return
	}

	if err := h.Store.SaveSettings(r.Context(), attendance.TeacherID(teacher), period, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// RunPayroll triggers one payroll cycle for a teacher.
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TeacherID == "" {
		writeError(w, http.StatusBadRequest, "teacher_id is required", nil)
		return
	}

	result, err := h.Processor.Run(r.Context(), attendance.TeacherID(req.TeacherID))
	if errors.Is(err, payroll.ErrRunConflict) {
		writeError(w, http.StatusConflict, "A payroll run is already in progress for this teacher", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Payroll run failed; nothing was applied", err)
		return
	}

	writeJSON(w, http.StatusOK, RunResultDTO{
		RunID:        result.RunID,
		TeacherID:    string(result.TeacherID),
		StudentsPaid: result.StudentsPaid,
		TotalAmount:  result.TotalAmount.String(),
		RunAt:        result.RunAt,
	})
}

// ListRuns returns a teacher's payroll run history, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	teacher := r.URL.Query().Get("teacher_id")
	if teacher == "" {
		writeError(w, http.StatusBadRequest, "teacher_id is required", nil)
		return
	}

	runs, err := h.Store.RunsByTeacher(r.Context(), attendance.TeacherID(teacher))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunRecordDTO, len(runs))
	for i, rec := range runs {
		dtos[i] = RunRecordDTO{
			RunID:        rec.RunID,
			RunAt:        rec.RunAt,
			StudentsPaid: rec.StudentsPaid,
			TotalAmount:  rec.TotalAmount.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns wage transactions for one student in one scope.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	student := r.URL.Query().Get("student_id")
	scope := r.URL.Query().Get("scope_key")
	if student == "" || scope == "" {
		writeError(w, http.StatusBadRequest, "student_id and scope_key are required", nil)
		return
	}

	txs, err := h.Store.WagesByStudent(r.Context(),
		attendance.StudentID(student), attendance.ScopeKey(scope))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}

	dtos := make([]WageTransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = wageDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// VoidTransaction flips a wage transaction's void flag. Display only;
// the underlying time stays paid.
func (h *Handler) VoidTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.Store.VoidWage(r.Context(), id)
	if errors.Is(err, payroll.ErrWageNotFound) {
		writeError(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to void transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DTO CONVERSION AND RESPONSE HELPERS
// =============================================================================

func settingsDTO(r payroll.Resolved) SettingsDTO {
	dto := SettingsDTO{
		PayRate:            r.PayRate.String(),
		TimeUnit:           string(r.TimeUnit),
		Rounding:           string(r.Rounding),
		OvertimeEnabled:    r.OvertimeEnabled,
		OvertimeThreshold:  r.OvertimeThreshold,
		OvertimeUnit:       string(r.OvertimeUnit),
		OvertimeWindow:     string(r.OvertimeWindow),
		MaxSecondsPerDay:   r.MaxSecondsPerDay,
		Schedule:           string(r.Schedule),
		CustomIntervalDays: r.CustomIntervalDays,
		Tier:               string(r.Tier),
	}
	if !r.FirstPayDate.IsZero() {
		dto.FirstPayDate = r.FirstPayDate.Format(time.RFC3339)
	}
	return dto
}

func settingsFromDTO(dto SettingsDTO) (payroll.Settings, error) {
	rate, err := decimal.NewFromString(dto.PayRate)
	if err != nil {
		return payroll.Settings{}, err
	}

	cfg := payroll.DefaultSettings()
	cfg.PayRate = rate
	if dto.TimeUnit != "" {
		cfg.TimeUnit = payroll.TimeUnit(dto.TimeUnit)
	}
	if dto.Rounding != "" {
		cfg.Rounding = payroll.RoundingMode(dto.Rounding)
	}
	cfg.OvertimeEnabled = dto.OvertimeEnabled
	cfg.OvertimeThreshold = dto.OvertimeThreshold
	if dto.OvertimeUnit != "" {
		cfg.OvertimeUnit = payroll.TimeUnit(dto.OvertimeUnit)
	}
	if dto.OvertimeWindow != "" {
		cfg.OvertimeWindow = payroll.OvertimeWindow(dto.OvertimeWindow)
	}
	cfg.MaxSecondsPerDay = dto.MaxSecondsPerDay
	if dto.Schedule != "" {
		cfg.Schedule = payroll.PayScheduleType(dto.Schedule)
	}
	cfg.CustomIntervalDays = dto.CustomIntervalDays
	if dto.FirstPayDate != "" {
		cfg.FirstPayDate, err = time.Parse(time.RFC3339, dto.FirstPayDate)
		if err != nil {
			return payroll.Settings{}, err
		}
	}
	return cfg, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Money fields
  travel as strings so clients never see float artifacts.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/classledger/accrual-engine/payroll"
)

// =============================================================================
// TAP EVENTS
// =============================================================================

// TapRequest records one tap in or tap out.
type TapRequest struct {
	StudentID string `json:"student_id"`
	TeacherID string `json:"teacher_id"`
	ScopeKey  string `json:"scope_key"`
	Period    string `json:"period"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// TapEventDTO is the stored event echoed back to the caller.
type TapEventDTO struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	ScopeKey  string    `json:"scope_key"`
	Period    string    `json:"period"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// =============================================================================
// LIVE STATUS
// =============================================================================

// StatusDTO is the per-period live status object for dashboard display.
type StatusDTO struct {
	IsActive        bool   `json:"is_active"`
	IsDoneForDay    bool   `json:"is_done_for_day"`
	DurationSeconds int64  `json:"duration_seconds"`
	ProjectedPay    string `json:"projected_pay"`
}

// =============================================================================
// SETTINGS
// =============================================================================

// SettingsDTO mirrors one payroll settings row. Period "" is the
// teacher's global row.
type SettingsDTO struct {
	PayRate            string `json:"pay_rate"`
	TimeUnit           string `json:"time_unit"`
	Rounding           string `json:"rounding"`
	OvertimeEnabled    bool   `json:"overtime_enabled"`
	OvertimeThreshold  int64  `json:"overtime_threshold"`
	OvertimeUnit       string `json:"overtime_unit"`
	OvertimeWindow     string `json:"overtime_window"`
	MaxSecondsPerDay   int64  `json:"max_seconds_per_day"`
	Schedule           string `json:"schedule"`
	CustomIntervalDays int    `json:"custom_interval_days"`
	FirstPayDate       string `json:"first_pay_date,omitempty"`
	Tier               string `json:"tier,omitempty"` // response only
}

// =============================================================================
// PAYROLL
// =============================================================================

type RunRequest struct {
	TeacherID string `json:"teacher_id"`
}

type RunResultDTO struct {
	RunID        string    `json:"run_id"`
	TeacherID    string    `json:"teacher_id"`
	StudentsPaid int       `json:"students_paid"`
	TotalAmount  string    `json:"total_amount"`
	RunAt        time.Time `json:"run_at"`
}

type RunRecordDTO struct {
	RunID        string    `json:"run_id"`
	RunAt        time.Time `json:"run_at"`
	StudentsPaid int       `json:"students_paid"`
	TotalAmount  string    `json:"total_amount"`
}

type WageTransactionDTO struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	ScopeKey    string    `json:"scope_key"`
	Period      string    `json:"period"`
	Amount      string    `json:"amount"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
	Voided      bool      `json:"voided"`
}

func wageDTO(tx payroll.WageTransaction) WageTransactionDTO {
	return WageTransactionDTO{
		ID:          tx.ID,
		StudentID:   string(tx.StudentID),
		ScopeKey:    string(tx.ScopeKey),
		Period:      tx.Period,
		Amount:      tx.Amount.String(),
		Type:        tx.Type,
		Timestamp:   tx.Timestamp,
		Description: tx.Description,
		Voided:      tx.Voided,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DATES:
  Calendar dates are generic.Date and travel as "YYYY-MM-DD". Timestamps
  are RFC3339 strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email,omitempty"`
	ServiceStart generic.Date `json:"service_start"`
	CreatedAt    string       `json:"created_at,omitempty"`
}

type CreateEmployeeRequest struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	ServiceStart generic.Date `json:"service_start"`
}

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:           e.ID,
		Name:         e.Name,
		Email:        e.Email,
		ServiceStart: e.ServiceStart,
		CreatedAt:    formatTimestamp(e.CreatedAt),
	}
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO is one balance row. Year is omitted for career rows.
type BalanceDTO struct {
	Category    leave.Category `json:"category"`
	Year        int            `json:"year,omitempty"`
	Period      string         `json:"period"`
	Total       int            `json:"total"`
	Used        int            `json:"used"`
	Remaining   int            `json:"remaining"`
	Available   int            `json:"available"`
	Utilization string         `json:"utilization_pct"`
	Overdrawn   bool           `json:"overdrawn,omitempty"`
}

type BalanceSummaryDTO struct {
	EmployeeID string            `json:"employee_id"`
	AsOf       generic.Date      `json:"as_of"`
	Balances   []BalanceDTO      `json:"balances"`
	Upcoming   []AccrualEventDTO `json:"upcoming_accruals"`
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	return BalanceDTO{
		Category:    b.Category,
		Year:        b.Year,
		Period:      string(leave.MustPolicy(b.Category).Period),
		Total:       b.Total,
		Used:        b.Used,
		Remaining:   b.Remaining(),
		Available:   b.Available(),
		Utilization: b.Utilization().StringFixed(2),
		Overdrawn:   b.Overdrawn(),
	}
}

func toBalanceDTOs(bs []leave.Balance) []BalanceDTO {
	out := make([]BalanceDTO, len(bs))
	for i, b := range bs {
		out[i] = toBalanceDTO(b)
	}
	return out
}

type AdjustBalanceRequest struct {
	Category string `json:"category"`
	Year     int    `json:"year"`
	Used     int    `json:"used"`
	Actor    string `json:"actor"`
	Reason   string `json:"reason"`
}

type DriftDTO struct {
	Kind      leave.DriftKind `json:"kind"`
	Category  leave.Category  `json:"category"`
	Year      int             `json:"year,omitempty"`
	Stored    *BalanceDTO     `json:"stored"`
	Rebuilt   BalanceDTO      `json:"rebuilt"`
	UsedDelta int             `json:"used_delta"`
}

type RebuildResponse struct {
	EmployeeID string       `json:"employee_id"`
	AsOf       generic.Date `json:"as_of"`
	Balances   []BalanceDTO `json:"balances"`
	Drift      []DriftDTO   `json:"drift"`
	Accrued    []DriftDTO   `json:"accrued"`
	Created    []DriftDTO   `json:"created"`
}

func toDriftDTOs(drifts []leave.Drift) []DriftDTO {
	out := make([]DriftDTO, 0, len(drifts))
	for _, d := range drifts {
		dto := DriftDTO{
			Kind:      d.Kind(),
			Category:  d.Category,
			Year:      d.Year,
			Rebuilt:   toBalanceDTO(d.Rebuilt),
			UsedDelta: d.UsedDelta(),
		}
		if d.Stored != nil {
			stored := toBalanceDTO(*d.Stored)
			dto.Stored = &stored
		}
		out = append(out, dto)
	}
	return out
}

func toRebuildResponse(r leave.RebuildReport) RebuildResponse {
	return RebuildResponse{
		EmployeeID: r.EmployeeID,
		AsOf:       r.AsOf,
		Balances:   toBalanceDTOs(r.Balances),
		Drift:      toDriftDTOs(r.Drift),
		Accrued:    toDriftDTOs(r.Accrued),
		Created:    toDriftDTOs(r.Created),
	}
}

// =============================================================================
// APPLICATIONS
// =============================================================================

type SubmitApplicationRequest struct {
	Category  string       `json:"category"`
	StartDate generic.Date `json:"start_date"`
	EndDate   generic.Date `json:"end_date"`
	Reason    string       `json:"reason"`
	Force     bool         `json:"force"`
}

type ApplicationDTO struct {
	ID         string         `json:"id"`
	EmployeeID string         `json:"employee_id"`
	Category   leave.Category `json:"category"`
	StartDate  generic.Date   `json:"start_date"`
	EndDate    generic.Date   `json:"end_date"`
	Days       int            `json:"days"`
	Status     leave.Status   `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	DecidedBy  string         `json:"decided_by,omitempty"`
	Revision   int            `json:"revision"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

func toApplicationDTO(a leave.Application) ApplicationDTO {
	return ApplicationDTO{
		ID:         a.ID,
		EmployeeID: a.EmployeeID,
		Category:   a.Category,
		StartDate:  a.Start,
		EndDate:    a.End,
		Days:       a.Days,
		Status:     a.Status,
		Reason:     a.Reason,
		DecidedBy:  a.DecidedBy,
		Revision:   a.Revision,
		CreatedAt:  formatTimestamp(a.CreatedAt),
		UpdatedAt:  formatTimestamp(a.UpdatedAt),
	}
}

func toApplicationDTOs(apps []leave.Application) []ApplicationDTO {
	out := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		out[i] = toApplicationDTO(a)
	}
	return out
}

// DecisionRequest is the body of approve / reject / reopen.
type DecisionRequest struct {
	Actor string `json:"actor"`
}

type MessageDTO struct {
	Code     leave.Code     `json:"code"`
	Severity leave.Severity `json:"severity"`
	Text     string         `json:"text"`
}

type ValidationDTO struct {
	OK       bool         `json:"ok"`
	Days     int          `json:"days"`
	Messages []MessageDTO `json:"messages"`
}

func toValidationDTO(r leave.Result, days int) ValidationDTO {
	msgs := make([]MessageDTO, len(r.Messages))
	for i, m := range r.Messages {
		msgs[i] = MessageDTO{Code: m.Code, Severity: m.Severity, Text: m.Text}
	}
	return ValidationDTO{OK: r.OK, Days: days, Messages: msgs}
}

type SubmitApplicationResponse struct {
	Application ApplicationDTO `json:"application"`
	Validation  ValidationDTO  `json:"validation"`
}

// =============================================================================
// ACCRUALS, JOURNAL, POLICIES
// =============================================================================

type AccrualEventDTO struct {
	Category leave.Category `json:"category"`
	At       generic.Date   `json:"at"`
	Days     int            `json:"days"`
	Total    int            `json:"total"`
	Reason   string         `json:"reason"`
}

func toAccrualEventDTOs(events []leave.AccrualEvent) []AccrualEventDTO {
	out := make([]AccrualEventDTO, len(events))
	for i, e := range events {
		out[i] = AccrualEventDTO{Category: e.Category, At: e.At, Days: e.Days, Total: e.Total, Reason: e.Reason}
	}
	return out
}

type JournalEntryDTO struct {
	ID            string            `json:"id"`
	Category      leave.Category    `json:"category"`
	Year          int               `json:"year,omitempty"`
	Kind          leave.JournalKind `json:"kind"`
	UsedDelta     int               `json:"used_delta"`
	TotalAfter    int               `json:"total_after"`
	UsedAfter     int               `json:"used_after"`
	ApplicationID string            `json:"application_id,omitempty"`
	Actor         string            `json:"actor,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

type PolicyDTO struct {
	Category                  leave.Category `json:"category"`
	Name                      string         `json:"name"`
	AccrualKind               string         `json:"accrual_kind"`
	AccrualDays               int            `json:"accrual_days"`
	BlockMonths               int            `json:"block_months,omitempty"`
	Period                    string         `json:"period"`
	CarryForward              bool           `json:"carry_forward"`
	RecommendedMaxConsecutive int            `json:"recommended_max_consecutive"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ErrorResponse struct {
	Error    string       `json:"error"`
	Details  string       `json:"details,omitempty"`
	Messages []MessageDTO `json:"messages,omitempty"`
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

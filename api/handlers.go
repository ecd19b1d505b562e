/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes leave.Service over REST. Handles HTTP request/response, JSON
  serialization, and delegates everything else to the service.

ENDPOINTS:
  Policies:
    GET    /api/policies                              Leave policy table

  Employees:
    GET    /api/employees                             List employees
    POST   /api/employees                             Register employee
    GET    /api/employees/{id}                        Employee details
    GET    /api/employees/{id}/balances?as_of=        Balance rows and next accruals
    POST   /api/employees/{id}/balances/rebuild       Full recompute
    POST   /api/employees/{id}/balances/adjust        Manual override
    GET    /api/employees/{id}/accruals?from=&to=     Accrual timeline
    GET    /api/employees/{id}/journal?limit=         Balance journal

  Applications:
    GET    /api/employees/{id}/applications?status=   List applications
    POST   /api/employees/{id}/applications           Submit application
    POST   /api/employees/{id}/applications/validate  Validation preview
    GET    /api/applications/pending                  Approval queue
    GET    /api/applications/{id}                     Application details
    POST   /api/applications/{id}/approve             Approve
    POST   /api/applications/{id}/reject              Reject (reverses if approved)
    POST   /api/applications/{id}/reopen              Back to pending

  Admin:
    POST   /api/admin/rebuild?as_of=                  Rebuild every employee

  Scenarios:
    GET    /api/scenarios                             List demo scenarios
    POST   /api/scenarios/load                        Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input (dates, category, status)
  - 404: Employee or application not found
  - 409: Conflict (duplicate idempotency key)
  - 422: Validation failed; the body carries the validation messages
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *leave.Service
	Store   *sqlite.Store
	Logger  *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

func NewHandler(store *sqlite.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service: leave.NewService(store, logger),
		Store:   store,
		Logger:  logger,
	}
}

func (h *Handler) today() generic.Date {
	return generic.DateOf(h.Service.Now())
}

// =============================================================================
// POLICIES
// =============================================================================

// ListPolicies returns the policy table.
// GET /api/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	var dtos []PolicyDTO
	for _, p := range leave.Policies() {
		dtos = append(dtos, PolicyDTO{
			Category:                  p.Category,
			Name:                      p.Name,
			AccrualKind:               string(p.Accrual.Kind),
			AccrualDays:               p.Accrual.Days,
			BlockMonths:               p.Accrual.BlockMonths,
			Period:                    string(p.Period),
			CarryForward:              p.CarryForward,
			RecommendedMaxConsecutive: p.RecommendedMaxConsecutive,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Service.Employees(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns one employee.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.Service.Employee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*e))
}

// CreateEmployee registers an employee and materializes their balances.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	e, err := h.Service.RegisterEmployee(r.Context(), leave.Employee{
		ID:           req.ID,
		Name:         req.Name,
		Email:        req.Email,
		ServiceStart: req.ServiceStart,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(e))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalances returns one row per category for the accounting year of as_of.
// GET /api/employees/{id}/balances?as_of=YYYY-MM-DD
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	asOf, err := dateParam(r, "as_of", h.today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}

	balances, err := h.Service.Balances(r.Context(), id, asOf)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	upcoming, err := h.Service.UpcomingAccruals(r.Context(), id, asOf)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceSummaryDTO{
		EmployeeID: id,
		AsOf:       asOf,
		Balances:   toBalanceDTOs(balances),
		Upcoming:   toAccrualEventDTOs(upcoming),
	})
}

// RebuildBalances recomputes the employee's balances from scratch.
// POST /api/employees/{id}/balances/rebuild?as_of=YYYY-MM-DD
func (h *Handler) RebuildBalances(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "as_of", h.today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}

	report, err := h.Service.Rebuild(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRebuildResponse(*report))
}

// AdjustBalance overrides Used on a balance row.
// POST /api/employees/{id}/balances/adjust
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req AdjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	category, err := leave.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return
	}
	if req.Actor == "" {
		req.Actor = "admin"
	}

	key := leave.BalanceKey{EmployeeID: chi.URLParam(r, "id"), Category: category, Year: req.Year}
	if key.Year == 0 && leave.MustPolicy(category).Period.Resets() {
		key.Year = h.today().Year()
	}

	b, err := h.Service.AdjustUsed(r.Context(), key, req.Used, req.Actor, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*b))
}

// GetAccruals lists entitlement events in [from, to].
// Defaults to the current calendar year.
// GET /api/employees/{id}/accruals?from=&to=
func (h *Handler) GetAccruals(w http.ResponseWriter, r *http.Request) {
	today := h.today()
	from, err := dateParam(r, "from", generic.StartOfYear(today.Year()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from", err)
		return
	}
	to, err := dateParam(r, "to", generic.EndOfYear(today.Year()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to", err)
		return
	}

	events, err := h.Service.Accruals(r.Context(), chi.URLParam(r, "id"), from, to)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccrualEventDTOs(events))
}

// GetJournal returns the newest balance mutations first.
// GET /api/employees/{id}/journal?limit=50
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := h.Service.Journal(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]JournalEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = JournalEntryDTO{
			ID:            e.ID,
			Category:      e.Category,
			Year:          e.Year,
			Kind:          e.Kind,
			UsedDelta:     e.UsedDelta,
			TotalAfter:    e.TotalAfter,
			UsedAfter:     e.UsedAfter,
			ApplicationID: e.ApplicationID,
			Actor:         e.Actor,
			Reason:        e.Reason,
			CreatedAt:     formatTimestamp(e.CreatedAt),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

// ListApplications returns an employee's applications.
// GET /api/employees/{id}/applications?status=PENDING
func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	filter := leave.ApplicationFilter{EmployeeID: chi.URLParam(r, "id")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := leave.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid status", err)
			return
		}
		filter.Status = status
	}

	apps, err := h.Service.Applications(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// SubmitApplication validates and stores a PENDING application.
// POST /api/employees/{id}/applications
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.decodeSubmission(w, r)
	if !ok {
		return
	}

	app, result, err := h.Service.Submit(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitApplicationResponse{
		Application: toApplicationDTO(*app),
		Validation:  toValidationDTO(result, app.Days),
	})
}

// ValidateApplication runs validation without storing anything.
// POST /api/employees/{id}/applications/validate
func (h *Handler) ValidateApplication(w http.ResponseWriter, r *http.Request) {
	sub, ok := h.decodeSubmission(w, r)
	if !ok {
		return
	}

	result, days, err := h.Service.Check(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toValidationDTO(result, days))
}

func (h *Handler) decodeSubmission(w http.ResponseWriter, r *http.Request) (leave.Submission, bool) {
	var req SubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return leave.Submission{}, false
	}
	category, err := leave.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid category", err)
		return leave.Submission{}, false
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		writeError(w, http.StatusBadRequest, "start_date and end_date are required", nil)
		return leave.Submission{}, false
	}

	return leave.Submission{
		EmployeeID: chi.URLParam(r, "id"),
		Category:   category,
		Start:      req.StartDate,
		End:        req.EndDate,
		Reason:     req.Reason,
		Force:      req.Force,
	}, true
}

// ListPendingApplications returns the approval queue.
// GET /api/applications/pending
func (h *Handler) ListPendingApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.Service.PendingApplications(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// GetApplication returns one application.
// GET /api/applications/{id}
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Service.Application(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

// ApproveApplication, RejectApplication and ReopenApplication move an
// application between statuses and update the ledger.
// POST /api/applications/{id}/approve
func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, leave.StatusApproved)
}

// POST /api/applications/{id}/reject
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, leave.StatusRejected)
}

// POST /api/applications/{id}/reopen
func (h *Handler) ReopenApplication(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, leave.StatusPending)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to leave.Status) {
	var req DecisionRequest
	// Body is optional
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Actor == "" {
		req.Actor = "admin"
	}

	app, err := h.Service.Transition(r.Context(), chi.URLParam(r, "id"), to, req.Actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

// =============================================================================
// ADMIN
// =============================================================================

// RebuildAll rebuilds every employee's balances.
// POST /api/admin/rebuild?as_of=YYYY-MM-DD
func (h *Handler) RebuildAll(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "as_of", h.today())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of", err)
		return
	}

	reports, err := h.Service.RebuildAll(r.Context(), asOf)
	out := make([]RebuildResponse, len(reports))
	for i, rep := range reports {
		out[i] = toRebuildResponse(rep)
	}
	if err != nil {
		h.Logger.Error("rebuild failed for some employees", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Rebuild failed for some employees",
			"details": err.Error(),
			"reports": out,
		})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// HELPERS
// =============================================================================

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

// writeServiceError maps service errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var failure *leave.ValidationFailure
	switch {
	case errors.As(err, &failure):
		dto := toValidationDTO(failure.Result, 0)
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:    "Validation failed",
			Details:  err.Error(),
			Messages: dto.Messages,
		})
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case generic.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		h.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// dateParam reads a YYYY-MM-DD query parameter, or def when absent.
func dateParam(r *http.Request, name string, def generic.Date) (generic.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return generic.ParseDate(raw)
}

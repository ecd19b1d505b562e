/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario registers employees and drives applications
	through the service, so every balance row is produced by the same code
	paths as real traffic.

AVAILABLE SCENARIOS:

	new-joiner:     Two months of service, no EARNED leave yet
	tenured:        Thirty months of service with approved leave in every category
	year-rollover:  CASUAL used last year, fresh allocation this year
	drift-repair:   A manual override that the next rebuild corrects
	overdrawn:      CASUAL exhausted, one more forced through and approved

	Dates are relative to the service clock so scenarios look the same
	whenever they are loaded.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "tenured"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Error mapping
  - leave/service.go: Submit, Transition, AdjustUsed
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-joiner",
		Name:        "New Joiner",
		Description: "Two months of service: MEDICAL and CASUAL available, EARNED not accrued yet",
	},
	{
		ID:          "tenured",
		Name:        "Tenured Employee",
		Description: "Thirty months of service (30 EARNED days) with approved leave in every category",
	},
	{
		ID:          "year-rollover",
		Name:        "Year Rollover",
		Description: "CASUAL fully used last year; this year's allocation starts fresh, EARNED carries forward",
	},
	{
		ID:          "drift-repair",
		Name:        "Drift Repair",
		Description: "A manual override leaves CASUAL out of line with approved history until the next rebuild",
	},
	{
		ID:          "overdrawn",
		Name:        "Overdrawn Balance",
		Description: "CASUAL exhausted, then one more application forced through and approved",
	},
}

var scenarioLoaders = map[string]func(*Handler, context.Context) error{
	"new-joiner":    (*Handler).loadNewJoinerScenario,
	"tenured":       (*Handler).loadTenuredScenario,
	"year-rollover": (*Handler).loadYearRolloverScenario,
	"drift-repair":  (*Handler).loadDriftRepairScenario,
	"overdrawn":     (*Handler).loadOverdrawnScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, ok := scenarioLoaders[req.ScenarioID]; !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// LoadScenarioByID resets the database and runs one loader.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	h.currentScenario = ""

	if err := load(h, ctx); err != nil {
		return err
	}
	h.currentScenario = id
	h.Logger.Info("scenario loaded", "scenario", id)
	return nil
}

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewJoinerScenario(ctx context.Context) error {
	today := h.today()
	if _, err := h.seedEmployee(ctx, "emp-001", "Alice Johnson", today.AddMonths(-2)); err != nil {
		return err
	}

	// Pending CASUAL request next week
	start := mondayOnOrAfter(today.AddDays(7))
	_, _, err := h.Service.Submit(ctx, leave.Submission{
		EmployeeID: "emp-001",
		Category:   leave.CategoryCasual,
		Start:      start,
		End:        start.AddDays(1),
		Reason:     "Moving house",
	})
	return err
}

func (h *Handler) loadTenuredScenario(ctx context.Context) error {
	today := h.today()
	if _, err := h.seedEmployee(ctx, "emp-002", "Bob Smith", today.AddMonths(-30)); err != nil {
		return err
	}

	yearStart := mondayOnOrAfter(generic.StartOfYear(today.Year()))
	steps := []struct {
		category leave.Category
		start    generic.Date
		days     int
		reason   string
	}{
		{leave.CategoryCasual, yearStart, 3, "Family event"},
		{leave.CategoryEarned, today.AddMonths(-8), 5, "Summer holiday"},
		{leave.CategoryMedical, today.AddMonths(-14), 2, "Flu"},
	}
	for _, s := range steps {
		if err := h.seedApproved(ctx, "emp-002", s.category, s.start, s.days, s.reason); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadYearRolloverScenario(ctx context.Context) error {
	today := h.today()
	if _, err := h.seedEmployee(ctx, "emp-003", "Carol White", today.AddMonths(-20)); err != nil {
		return err
	}

	// Twelve CASUAL days last year in three blocks
	lastYear := mondayOnOrAfter(generic.StartOfYear(today.Year() - 1).AddMonths(2))
	for i := 0; i < 3; i++ {
		if err := h.seedApproved(ctx, "emp-003", leave.CategoryCasual, lastYear.AddDays(14*i), 4, "Long weekend"); err != nil {
			return err
		}
	}
	if err := h.seedApproved(ctx, "emp-003", leave.CategoryEarned, lastYear.AddMonths(5), 4, "Trip"); err != nil {
		return err
	}

	_, err := h.Service.Rebuild(ctx, "emp-003", today)
	return err
}

func (h *Handler) loadDriftRepairScenario(ctx context.Context) error {
	today := h.today()
	if _, err := h.seedEmployee(ctx, "emp-004", "Dan Brown", today.AddMonths(-13)); err != nil {
		return err
	}
	if err := h.seedApproved(ctx, "emp-004", leave.CategoryCasual, mondayOnOrAfter(generic.StartOfYear(today.Year())), 2, "Appointment"); err != nil {
		return err
	}

	key := leave.BalanceKey{EmployeeID: "emp-004", Category: leave.CategoryCasual, Year: today.Year()}
	_, err := h.Service.AdjustUsed(ctx, key, 7, "hr-admin", "Imported from spreadsheet")
	return err
}

func (h *Handler) loadOverdrawnScenario(ctx context.Context) error {
	today := h.today()
	if _, err := h.seedEmployee(ctx, "emp-005", "Eve Davis", today.AddMonths(-40)); err != nil {
		return err
	}

	yearStart := mondayOnOrAfter(generic.StartOfYear(today.Year()))
	for i := 0; i < 3; i++ {
		if err := h.seedApproved(ctx, "emp-005", leave.CategoryCasual, yearStart.AddDays(7*i), 4, "Childcare"); err != nil {
			return err
		}
	}
	return h.seedApproved(ctx, "emp-005", leave.CategoryCasual, yearStart.AddDays(21), 2, "Emergency")
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) seedEmployee(ctx context.Context, id, name string, serviceStart generic.Date) (leave.Employee, error) {
	return h.Service.RegisterEmployee(ctx, leave.Employee{
		ID:           id,
		Name:         name,
		Email:        fmt.Sprintf("%s@example.com", id),
		ServiceStart: serviceStart,
		CreatedAt:    time.Now().UTC(),
	})
}

// seedApproved submits `days` working days from start (forced) and approves them.
func (h *Handler) seedApproved(ctx context.Context, employeeID string, c leave.Category, start generic.Date, days int, reason string) error {
	start = mondayOnOrAfter(start)
	end := start
	for n := 1; n < days; n++ {
		end = end.AddDays(1)
		for end.IsWeekend() {
			end = end.AddDays(1)
		}
	}

	app, _, err := h.Service.Submit(ctx, leave.Submission{
		EmployeeID: employeeID,
		Category:   c,
		Start:      start,
		End:        end,
		Reason:     reason,
		Force:      true,
	})
	if err != nil {
		return fmt.Errorf("failed to submit %s leave: %w", c, err)
	}
	if _, err := h.Service.Approve(ctx, app.ID, "manager"); err != nil {
		return fmt.Errorf("failed to approve %s: %w", app.ID, err)
	}
	return nil
}

func mondayOnOrAfter(d generic.Date) generic.Date {
	for d.Weekday() != time.Monday {
		d = d.AddDays(1)
	}
	return d
}

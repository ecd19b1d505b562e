/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state:
	- Employees are registered
	- Applications are submitted and approved through the service
	- Balance rows match the approved history

These tests double as integration tests of the service against SQLite.
All scenarios run with the clock pinned to testNow (2025-03-10).
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
)

func loadScenario(t *testing.T, h *Handler, id string) map[leave.Category]leave.Balance {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.LoadScenarioByID(ctx, id))

	employees, err := h.Service.Employees(ctx)
	require.NoError(t, err)
	require.Len(t, employees, 1)

	balances, err := h.Service.Balances(ctx, employees[0].ID, h.today())
	require.NoError(t, err)

	out := make(map[leave.Category]leave.Balance, len(balances))
	for _, b := range balances {
		out[b.Category] = b
	}
	return out
}

func TestScenario_NewJoiner(t *testing.T) {
	// GIVEN: two months of service
	// WHEN: loading the scenario
	// THEN: no EARNED days yet, one pending CASUAL request

	h, _ := setupTestHandler(t)
	balances := loadScenario(t, h, "new-joiner")

	assert.Equal(t, 365, balances[leave.CategoryMedical].Total)
	assert.Equal(t, 12, balances[leave.CategoryCasual].Total)
	assert.Equal(t, 0, balances[leave.CategoryEarned].Total)

	pending, err := h.Service.PendingApplications(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Days)
	assert.Equal(t, 0, balances[leave.CategoryCasual].Used, "pending leave is not counted")
}

func TestScenario_Tenured(t *testing.T) {
	h, _ := setupTestHandler(t)
	balances := loadScenario(t, h, "tenured")

	// 30 months of service: five blocks of 6 EARNED days
	assert.Equal(t, 30, balances[leave.CategoryEarned].Total)
	assert.Equal(t, 5, balances[leave.CategoryEarned].Used)
	assert.Equal(t, 3, balances[leave.CategoryCasual].Used)
	assert.Equal(t, 9, balances[leave.CategoryCasual].Remaining())
	assert.Equal(t, 2, balances[leave.CategoryMedical].Used)
	assert.Equal(t, 363, balances[leave.CategoryMedical].Remaining())
}

func TestScenario_YearRollover(t *testing.T) {
	h, _ := setupTestHandler(t)
	balances := loadScenario(t, h, "year-rollover")

	// THEN: this year's CASUAL row is fresh
	assert.Equal(t, 2025, balances[leave.CategoryCasual].Year)
	assert.Equal(t, 0, balances[leave.CategoryCasual].Used)
	assert.Equal(t, 12, balances[leave.CategoryCasual].Remaining())

	// Last year's row is exhausted and untouched
	lastYear, err := h.Store.GetBalance(context.Background(), leave.BalanceKey{
		EmployeeID: "emp-003", Category: leave.CategoryCasual, Year: 2024,
	})
	require.NoError(t, err)
	require.NotNil(t, lastYear)
	assert.Equal(t, 12, lastYear.Used)
	assert.Equal(t, 0, lastYear.Remaining())

	// EARNED carries forward: 20 months of service, 4 days used last year
	assert.Equal(t, 18, balances[leave.CategoryEarned].Total)
	assert.Equal(t, 14, balances[leave.CategoryEarned].Remaining())
}

func TestScenario_DriftRepair(t *testing.T) {
	h, _ := setupTestHandler(t)
	balances := loadScenario(t, h, "drift-repair")

	// GIVEN: the override is still in place
	require.Equal(t, 7, balances[leave.CategoryCasual].Used)

	// WHEN
	report, err := h.Service.Rebuild(context.Background(), "emp-004", h.today())
	require.NoError(t, err)

	// THEN: corrected to the approved 2 days
	require.Len(t, report.Drift, 1)
	assert.Equal(t, -5, report.Drift[0].UsedDelta())
	for _, b := range report.Balances {
		if b.Category == leave.CategoryCasual {
			assert.Equal(t, 2, b.Used)
		}
	}
}

func TestScenario_Overdrawn(t *testing.T) {
	h, _ := setupTestHandler(t)
	balances := loadScenario(t, h, "overdrawn")

	casual := balances[leave.CategoryCasual]
	assert.Equal(t, 14, casual.Used)
	assert.Equal(t, -2, casual.Remaining())
	assert.Equal(t, 0, casual.Available())
	assert.True(t, casual.Overdrawn())

	// A rebuild agrees with the incremental path
	report, err := h.Service.Rebuild(context.Background(), "emp-005", h.today())
	require.NoError(t, err)
	assert.Empty(t, report.Drift)
}

func TestScenario_AllScenariosLoadWithoutError(t *testing.T) {
	h, router := setupTestHandler(t)

	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			current := decode[ScenarioDTO](t, doJSON(t, router, http.MethodGet, "/api/scenarios/current", nil))
			assert.Equal(t, s.ID, current.ID)

			// Every scenario is internally consistent except the deliberate override
			reports, err := h.Service.RebuildAll(context.Background(), h.today())
			require.NoError(t, err)
			drifted := 0
			for _, r := range reports {
				drifted += len(r.Drift)
			}
			if s.ID == "drift-repair" {
				assert.Equal(t, 1, drifted)
			} else {
				assert.Zero(t, drifted)
			}
		})
	}

	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

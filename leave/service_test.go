package leave_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/sqlite"
)

// setupService returns a service over an in-memory store with the clock
// pinned to Monday 2025-03-10 and one employee, emp-1, with 32 months of
// service.
func setupService(t *testing.T) *leave.Service {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := leave.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.Now = func() time.Time { return time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC) }

	_, err = svc.RegisterEmployee(context.Background(), leave.Employee{
		ID:           "emp-1",
		Name:         "Alice",
		ServiceStart: d("2022-07-10"),
	})
	require.NoError(t, err)
	return svc
}

func balanceOf(t *testing.T, svc *leave.Service, c leave.Category, asOf string) leave.Balance {
	t.Helper()
	balances, err := svc.Balances(context.Background(), "emp-1", d(asOf))
	require.NoError(t, err)
	for _, b := range balances {
		if b.Category == c {
			return b
		}
	}
	t.Fatalf("no %s balance", c)
	return leave.Balance{}
}

func submit(t *testing.T, svc *leave.Service, c leave.Category, start, end string) *leave.Application {
	t.Helper()
	app, _, err := svc.Submit(context.Background(), leave.Submission{
		EmployeeID: "emp-1", Category: c, Start: d(start), End: d(end),
	})
	require.NoError(t, err)
	return app
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestService_RegisterEmployee(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	rows, err := svc.Store.ListBalances(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, rows, 3, "one row per category is created on registration")

	_, err = svc.RegisterEmployee(ctx, leave.Employee{Name: "No start"})
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	e, err := svc.RegisterEmployee(ctx, leave.Employee{Name: "Bob", ServiceStart: d("2025-01-01")})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID, "an ID is generated")
}

// =============================================================================
// SUBMIT AND TRANSITION
// =============================================================================

func TestService_ApproveThenReject(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	// GIVEN: a pending 3-day CASUAL application
	app := submit(t, svc, leave.CategoryCasual, "2025-03-17", "2025-03-19")
	assert.Equal(t, leave.StatusPending, app.Status)
	assert.Equal(t, 0, balanceOf(t, svc, leave.CategoryCasual, "2025-03-10").Used)

	// WHEN: approved
	approved, err := svc.Approve(ctx, app.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t, "manager", approved.DecidedBy)
	assert.Equal(t, 1, approved.Revision)

	// THEN
	casual := balanceOf(t, svc, leave.CategoryCasual, "2025-03-10")
	assert.Equal(t, 3, casual.Used)
	assert.Equal(t, 9, casual.Remaining())

	// WHEN: rejected
	_, err = svc.Reject(ctx, app.ID, "manager")
	require.NoError(t, err)

	// THEN: the balance is back where it started
	assert.Equal(t, 0, balanceOf(t, svc, leave.CategoryCasual, "2025-03-10").Used)

	// And approving again applies the delta a second time
	_, err = svc.Approve(ctx, app.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, 3, balanceOf(t, svc, leave.CategoryCasual, "2025-03-10").Used)

	entries, err := svc.Journal(ctx, "emp-1", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, leave.JournalApproval, entries[0].Kind)
	assert.Equal(t, leave.JournalReversal, entries[1].Kind)
	assert.Equal(t, -3, entries[1].UsedDelta)
	assert.Equal(t, leave.JournalApproval, entries[2].Kind)
}

func TestService_SameStatusIsNoOp(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	app := submit(t, svc, leave.CategoryMedical, "2025-03-17", "2025-03-18")

	_, err := svc.Approve(ctx, app.ID, "manager")
	require.NoError(t, err)
	again, err := svc.Approve(ctx, app.ID, "someone-else")
	require.NoError(t, err)

	assert.Equal(t, 1, again.Revision)
	assert.Equal(t, "manager", again.DecidedBy)
	assert.Equal(t, 2, balanceOf(t, svc, leave.CategoryMedical, "2025-03-10").Used)
}

func TestService_ReopenReverses(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	app := submit(t, svc, leave.CategoryEarned, "2025-03-17", "2025-03-21")

	_, err := svc.Approve(ctx, app.ID, "manager")
	require.NoError(t, err)
	require.Equal(t, 5, balanceOf(t, svc, leave.CategoryEarned, "2025-03-10").Used)

	reopened, err := svc.Reopen(ctx, app.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, reopened.Status)
	assert.Equal(t, 0, balanceOf(t, svc, leave.CategoryEarned, "2025-03-10").Used)

	pending, err := svc.PendingApplications(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestService_RejectPendingLeavesBalance(t *testing.T) {
	svc := setupService(t)
	app := submit(t, svc, leave.CategoryCasual, "2025-03-17", "2025-03-17")

	_, err := svc.Reject(context.Background(), app.ID, "manager")
	require.NoError(t, err)

	assert.Equal(t, 0, balanceOf(t, svc, leave.CategoryCasual, "2025-03-10").Used)
	entries, err := svc.Journal(context.Background(), "emp-1", 10)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, leave.JournalReversal, e.Kind)
	}
}

func TestService_SubmitValidationFailure(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	// GIVEN: 13 working days of CASUAL against 12 available
	sub := leave.Submission{
		EmployeeID: "emp-1",
		Category:   leave.CategoryCasual,
		Start:      d("2025-03-17"),
		End:        d("2025-04-02"),
	}

	// WHEN
	app, result, err := svc.Submit(ctx, sub)

	// THEN
	require.Error(t, err)
	assert.Nil(t, app)
	assert.True(t, errors.Is(err, leave.ErrValidationFailed))
	var failure *leave.ValidationFailure
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.Result.Has(leave.CodeInsufficientBalance))
	assert.True(t, result.Has(leave.CodeOverRecommended))
	assert.Contains(t, result.Texts(), "insufficient balance, available: 12")

	apps, err := svc.Applications(ctx, leave.ApplicationFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Empty(t, apps)

	// WHEN: forced
	sub.Force = true
	app, result, err = svc.Submit(ctx, sub)

	// THEN: stored, and approving it overdraws the row
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, 13, app.Days)

	_, err = svc.Approve(ctx, app.ID, "manager")
	require.NoError(t, err)
	casual := balanceOf(t, svc, leave.CategoryCasual, "2025-03-10")
	assert.Equal(t, -1, casual.Remaining())
	assert.True(t, casual.Overdrawn())
}

func TestService_ForceCannotBypassReversedRange(t *testing.T) {
	svc := setupService(t)

	_, result, err := svc.Submit(context.Background(), leave.Submission{
		EmployeeID: "emp-1",
		Category:   leave.CategoryMedical,
		Start:      d("2025-03-20"),
		End:        d("2025-03-18"),
		Force:      true,
	})

	require.ErrorIs(t, err, leave.ErrValidationFailed)
	assert.True(t, result.Has(leave.CodeReversedRange))
	assert.True(t, result.Has(leave.CodeNonPositiveDays))
	assert.False(t, result.Overridable())
}

func TestService_CheckWritesNothing(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	// A request in next year's CASUAL allocation
	result, days, err := svc.Check(ctx, leave.Submission{
		EmployeeID: "emp-1",
		Category:   leave.CategoryCasual,
		Start:      d("2026-01-05"),
		End:        d("2026-01-06"),
	})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 2, days)

	row, err := svc.Store.GetBalance(ctx, leave.BalanceKey{EmployeeID: "emp-1", Category: leave.CategoryCasual, Year: 2026})
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestService_FutureYearRowCreatedOnDemand(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	app := submit(t, svc, leave.CategoryCasual, "2026-01-05", "2026-01-08")
	_, err := svc.Approve(ctx, app.ID, "manager")
	require.NoError(t, err)

	next, err := svc.Store.GetBalance(ctx, leave.BalanceKey{EmployeeID: "emp-1", Category: leave.CategoryCasual, Year: 2026})
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 4, next.Used)
	assert.Equal(t, 12, next.Total)

	assert.Equal(t, 0, balanceOf(t, svc, leave.CategoryCasual, "2025-03-10").Used, "this year is untouched")
}

// =============================================================================
// REBUILD AND OVERRIDE
// =============================================================================

func TestService_RebuildReplacesOverride(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	app := submit(t, svc, leave.CategoryCasual, "2025-03-17", "2025-03-18")
	_, err := svc.Approve(ctx, app.ID, "manager")
	require.NoError(t, err)

	// GIVEN: a manual override
	key := leave.BalanceKey{EmployeeID: "emp-1", Category: leave.CategoryCasual, Year: 2025}
	adjusted, err := svc.AdjustUsed(ctx, key, 10, "hr", "import")
	require.NoError(t, err)
	assert.Equal(t, 10, adjusted.Used)

	// WHEN
	report, err := svc.Rebuild(ctx, "emp-1", d("2025-03-10"))
	require.NoError(t, err)

	// THEN: drift is reported, the row follows the approved history
	require.Len(t, report.Drift, 1)
	drift := report.Drift[0]
	assert.Equal(t, leave.CategoryCasual, drift.Category)
	require.NotNil(t, drift.Stored)
	assert.Equal(t, 10, drift.Stored.Used)
	assert.Equal(t, 2, drift.Rebuilt.Used)
	assert.Equal(t, 2, balanceOf(t, svc, leave.CategoryCasual, "2025-03-10").Used)

	// A second rebuild finds nothing
	report, err = svc.Rebuild(ctx, "emp-1", d("2025-03-10"))
	require.NoError(t, err)
	assert.Empty(t, report.Drift)
}

func TestService_RebuildRefreshesEarnedTotal(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	require.Equal(t, 30, balanceOf(t, svc, leave.CategoryEarned, "2025-03-10").Total)

	// Service reaches 36 months on 2025-07-10
	report, err := svc.Rebuild(ctx, "emp-1", d("2025-07-10"))
	require.NoError(t, err)

	assert.Empty(t, report.Drift, "growth is not a correction")
	require.Len(t, report.Accrued, 1)
	assert.Equal(t, leave.CategoryEarned, report.Accrued[0].Category)
	assert.Equal(t, 30, report.Accrued[0].Stored.Total)

	entries, err := svc.Journal(ctx, "emp-1", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, leave.JournalAccrual, entries[0].Kind)

	var earned leave.Balance
	for _, b := range report.Balances {
		if b.Category == leave.CategoryEarned {
			earned = b
		}
	}
	assert.Equal(t, 36, earned.Total)
}

func TestService_AdjustUsedValidation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.AdjustUsed(ctx, leave.BalanceKey{EmployeeID: "emp-1", Category: leave.CategoryMedical}, -1, "hr", "")
	assert.ErrorIs(t, err, generic.ErrInvalidInput)

	_, err = svc.AdjustUsed(ctx, leave.BalanceKey{EmployeeID: "emp-1", Category: leave.CategoryCasual}, 1, "hr", "")
	assert.ErrorIs(t, err, generic.ErrInvalidInput, "CASUAL needs a year")

	// Career categories ignore the year
	b, err := svc.AdjustUsed(ctx, leave.BalanceKey{EmployeeID: "emp-1", Category: leave.CategoryMedical, Year: 2025}, 4, "hr", "")
	require.NoError(t, err)
	assert.Equal(t, generic.CareerYear, b.Year)
	assert.Equal(t, 4, balanceOf(t, svc, leave.CategoryMedical, "2025-03-10").Used)
}

func TestService_NotFound(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.Approve(ctx, "missing", "manager")
	assert.ErrorIs(t, err, generic.ErrApplicationNotFound)
	assert.True(t, generic.IsNotFound(err))

	_, err = svc.Balances(ctx, "ghost", d("2025-03-10"))
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)

	_, _, err = svc.Submit(ctx, leave.Submission{EmployeeID: "ghost", Category: leave.CategoryCasual, Start: d("2025-03-17"), End: d("2025-03-17")})
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)

	_, err = svc.Rebuild(ctx, "ghost", d("2025-03-10"))
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestService_RebuildAll(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	_, err := svc.RegisterEmployee(ctx, leave.Employee{ID: "emp-2", Name: "Bob", ServiceStart: d("2024-11-01")})
	require.NoError(t, err)

	reports, err := svc.RebuildAll(ctx, d("2026-01-02"))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	// The new year's CASUAL row now exists for both
	for _, id := range []string{"emp-1", "emp-2"} {
		row, err := svc.Store.GetBalance(ctx, leave.BalanceKey{EmployeeID: id, Category: leave.CategoryCasual, Year: 2026})
		require.NoError(t, err)
		require.NotNil(t, row, id)
		assert.Equal(t, 12, row.Total)
	}
}

func TestService_Accruals(t *testing.T) {
	svc := setupService(t)

	events, err := svc.Accruals(context.Background(), "emp-1", d("2025-01-01"), d("2025-12-31"))
	require.NoError(t, err)

	var earned []leave.AccrualEvent
	for _, e := range events {
		if e.Category == leave.CategoryEarned {
			earned = append(earned, e)
		}
	}
	require.Len(t, earned, 2)
	assert.Equal(t, d("2025-01-10"), earned[0].At)
	assert.Equal(t, 36, earned[1].Total)

	_, err = svc.Accruals(context.Background(), "emp-1", d("2025-12-31"), d("2025-01-01"))
	assert.ErrorIs(t, err, generic.ErrInvalidRange)
}

// =============================================================================
// ENTITLEMENT GROWTH WITHOUT REBUILD
// =============================================================================

func storeBackends(t *testing.T) map[string]leave.Store {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]leave.Store{"sqlite": db, "memory": memory.New()}
}

func TestService_EarnedGrowsWithoutRebuild(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := leave.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
			now := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)
			svc.Now = func() time.Time { return now }

			// GIVEN: registered with under six months of service, EARNED 0
			_, err := svc.RegisterEmployee(ctx, leave.Employee{ID: "emp-1", Name: "Alice", ServiceStart: d("2024-07-10")})
			require.NoError(t, err)
			key := leave.BalanceKey{EmployeeID: "emp-1", Category: leave.CategoryEarned}
			stored, err := store.GetBalance(ctx, key)
			require.NoError(t, err)
			require.Equal(t, 0, stored.Total)

			// WHEN: the clock passes the six-month step, nothing rebuilt
			now = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
			sub := leave.Submission{
				EmployeeID: "emp-1",
				Category:   leave.CategoryEarned,
				Start:      d("2025-03-10"),
				End:        d("2025-03-12"),
			}

			// THEN: validation sees the current entitlement
			result, days, err := svc.Check(ctx, sub)
			require.NoError(t, err)
			assert.True(t, result.OK, result.Texts())
			assert.Equal(t, 3, days)

			balances, err := svc.Balances(ctx, "emp-1", d("2025-03-03"))
			require.NoError(t, err)
			assert.Equal(t, 6, balances[2].Total)

			// A future as_of is a view, not a write
			future, err := svc.Balances(ctx, "emp-1", d("2030-01-01"))
			require.NoError(t, err)
			assert.Equal(t, 60, future[2].Total)
			stored, err = store.GetBalance(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, 6, stored.Total)

			app, _, err := svc.Submit(ctx, sub)
			require.NoError(t, err)
			_, err = svc.Approve(ctx, app.ID, "manager")
			require.NoError(t, err)

			stored, err = store.GetBalance(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, 6, stored.Total)
			assert.Equal(t, 3, stored.Used)

			// The incremental path agrees with a rebuild
			report, err := svc.Rebuild(ctx, "emp-1", d("2025-03-03"))
			require.NoError(t, err)
			assert.Empty(t, report.Drift)
			assert.Empty(t, report.Accrued)

			entries, err := svc.Journal(ctx, "emp-1", 0)
			require.NoError(t, err)
			var accruals int
			for _, e := range entries {
				if e.Kind == leave.JournalAccrual {
					accruals++
					assert.Equal(t, 6, e.TotalAfter)
				}
			}
			assert.Equal(t, 1, accruals)
		})
	}
}

func TestService_TransitionUsesCurrentEntitlement(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	// GIVEN: a pending EARNED application, then service passes 36 months
	app := submit(t, svc, leave.CategoryEarned, "2025-08-04", "2025-08-08")
	now := time.Date(2025, time.July, 14, 9, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }

	// WHEN
	_, err := svc.Approve(ctx, app.ID, "manager")
	require.NoError(t, err)

	// THEN
	row, err := svc.Store.GetBalance(ctx, leave.BalanceKey{EmployeeID: "emp-1", Category: leave.CategoryEarned})
	require.NoError(t, err)
	assert.Equal(t, 36, row.Total)
	assert.Equal(t, 5, row.Used)
	assert.Equal(t, 31, row.Remaining())
}

package leave_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func d(s string) generic.Date { return generic.MustParseDate(s) }

// =============================================================================
// ENTITLEMENT
// =============================================================================

func TestComputeEntitlement_FixedCategories(t *testing.T) {
	start := d("2024-03-15")

	for _, asOf := range []string{"2000-01-01", "2024-03-15", "2031-12-31"} {
		assert.Equal(t, 365, leave.ComputeEntitlement(leave.CategoryMedical, start, d(asOf)), asOf)
		assert.Equal(t, 12, leave.ComputeEntitlement(leave.CategoryCasual, start, d(asOf)), asOf)
	}
}

func TestComputeEntitlement_Earned(t *testing.T) {
	tests := []struct {
		name  string
		start string
		asOf  string
		want  int
	}{
		{"thirty months of service", "2022-07-10", "2025-01-10", 30},
		{"twenty four months of service", "2023-01-01", "2025-01-01", 24},
		{"first day of service", "2025-01-01", "2025-01-01", 0},
		{"one day short of six months", "2025-01-15", "2025-07-14", 0},
		{"exactly six months", "2025-01-15", "2025-07-15", 6},
		{"eleven months", "2025-01-15", "2025-12-20", 6},
		{"as-of before service start", "2025-06-01", "2024-01-01", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := leave.ComputeEntitlement(leave.CategoryEarned, d(tt.start), d(tt.asOf))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeEntitlement_EarnedIsZeroBeforeServiceStart(t *testing.T) {
	start := d("2023-05-31")
	for asOf := start.AddDays(-800); asOf.Before(start); asOf = asOf.AddDays(7) {
		require.Zero(t, leave.ComputeEntitlement(leave.CategoryEarned, start, asOf), asOf.String())
	}
}

func TestComputeEntitlement_EarnedNeverDecreases(t *testing.T) {
	start := d("2021-08-31")
	prev := 0
	for asOf := start.AddDays(-30); asOf.Before(d("2026-01-01")); asOf = asOf.AddDays(1) {
		got := leave.ComputeEntitlement(leave.CategoryEarned, start, asOf)
		require.GreaterOrEqual(t, got, prev, "entitlement dropped at %s", asOf)
		prev = got
	}
}

// =============================================================================
// TIMELINE
// =============================================================================

func TestAccrualTimeline_Earned(t *testing.T) {
	// GIVEN: service started 2024-01-10
	start := d("2024-01-10")

	// WHEN: listing accruals over two years
	events := leave.AccrualTimeline(leave.CategoryEarned, start, d("2024-01-01"), d("2025-12-31"))

	// THEN: one step of 6 every six months
	require.Len(t, events, 3)
	assert.Equal(t, d("2024-07-10"), events[0].At)
	assert.Equal(t, d("2025-01-10"), events[1].At)
	assert.Equal(t, d("2025-07-10"), events[2].At)
	for i, e := range events {
		assert.Equal(t, 6, e.Days)
		assert.Equal(t, 6*(i+1), e.Total)
		assert.Equal(t, leave.CategoryEarned, e.Category)
	}
}

func TestAccrualTimeline_CasualGrantsEveryYear(t *testing.T) {
	start := d("2023-06-01")

	events := leave.AccrualTimeline(leave.CategoryCasual, start, d("2023-01-01"), d("2025-03-01"))

	require.Len(t, events, 3)
	assert.Equal(t, start, events[0].At, "first grant on the service start date")
	assert.Equal(t, d("2024-01-01"), events[1].At)
	assert.Equal(t, d("2025-01-01"), events[2].At)
	for _, e := range events {
		assert.Equal(t, 12, e.Days)
	}
}

func TestAccrualTimeline_MedicalOnceOnServiceStart(t *testing.T) {
	start := d("2023-06-01")

	events := leave.AccrualTimeline(leave.CategoryMedical, start, d("2020-01-01"), d("2030-01-01"))
	require.Len(t, events, 1)
	assert.Equal(t, start, events[0].At)
	assert.Equal(t, 365, events[0].Total)

	assert.Empty(t, leave.AccrualTimeline(leave.CategoryMedical, start, d("2024-01-01"), d("2030-01-01")))
}

func TestAccrualTimeline_EmptyWindow(t *testing.T) {
	assert.Empty(t, leave.AccrualTimeline(leave.CategoryEarned, d("2024-01-01"), d("2025-01-01"), d("2024-06-01")))
}

// scanSteps lists entitlement increases by checking every day.
func scanSteps(c leave.Category, start, from, to generic.Date) []leave.AccrualEvent {
	var events []leave.AccrualEvent
	prev := leave.ComputeEntitlement(c, start, from.AddDays(-1))
	for day := from; day.BeforeOrEqual(to); day = day.AddDays(1) {
		total := leave.ComputeEntitlement(c, start, day)
		if total > prev {
			events = append(events, leave.AccrualEvent{Category: c, At: day, Days: total - prev, Total: total, Reason: "service accrual"})
		}
		prev = total
	}
	return events
}

func TestAccrualTimeline_EarnedMatchesDailyScan(t *testing.T) {
	// Month-end and leap-day starts step off the plain AddMonths date
	for _, start := range []string{"2022-07-10", "2023-08-31", "2024-01-31", "2024-02-29", "2023-12-30"} {
		t.Run(start, func(t *testing.T) {
			from, to := d("2023-01-01"), d("2029-12-31")
			want := scanSteps(leave.CategoryEarned, d(start), from, to)

			got := leave.AccrualTimeline(leave.CategoryEarned, d(start), from, to)

			require.NotEmpty(t, want)
			assert.Equal(t, want, got)
		})
	}

	// Window starting and ending inside a step's neighbourhood
	start := d("2023-08-31")
	from, to := d("2024-02-29"), d("2024-03-01")
	assert.Equal(t, scanSteps(leave.CategoryEarned, start, from, to), leave.AccrualTimeline(leave.CategoryEarned, start, from, to))
}

func TestAccrualTimeline_WideWindowStepsByBlock(t *testing.T) {
	// GIVEN: a window of eight thousand years
	start := d("2020-01-01")

	// WHEN
	events := leave.AccrualTimeline(leave.CategoryEarned, start, d("1900-01-01"), d("9999-12-31"))

	// THEN: one event per six months of service
	require.Len(t, events, 15959)
	assert.Equal(t, d("2020-07-01"), events[0].At)
	assert.Equal(t, 6*15959, events[len(events)-1].Total)
}

func TestNextAccrual(t *testing.T) {
	start := d("2024-01-10")

	next, ok := leave.NextAccrual(leave.CategoryEarned, start, d("2024-07-10"))
	require.True(t, ok)
	assert.Equal(t, d("2025-01-10"), next.At)
	assert.Equal(t, 12, next.Total)

	next, ok = leave.NextAccrual(leave.CategoryEarned, start, d("2023-01-01"))
	require.True(t, ok)
	assert.Equal(t, d("2024-07-10"), next.At)

	next, ok = leave.NextAccrual(leave.CategoryCasual, start, d("2024-07-10"))
	require.True(t, ok)
	assert.Equal(t, d("2025-01-01"), next.At)

	_, ok = leave.NextAccrual(leave.CategoryMedical, start, d("2024-07-10"))
	assert.False(t, ok)
}

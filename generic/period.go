package generic

// =============================================================================
// PERIOD - The window a balance is accounted over
// =============================================================================

// Period is an inclusive date range [Start, End].
//
// Examples:
//   - Accounting year 2025: 2025-01-01 .. 2025-12-31
//   - Career: service start .. as-of date
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Validate rejects a period whose end precedes its start.
func (p Period) Validate() error {
	if p.Start.After(p.End) {
		return &InvalidRangeError{Start: p.Start, End: p.End}
	}
	return nil
}

// Days returns every day in the period. Empty for a reversed period.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// PeriodType defines how a balance window is derived.
type PeriodType string

const (
	PeriodCareer       PeriodType = "career"        // One window for the whole employment
	PeriodCalendarYear PeriodType = "calendar_year" // Jan 1 - Dec 31, resets every year
	PeriodRolling      PeriodType = "rolling"       // Grows from service start, never resets
)

// CareerYear is the accounting-year key used for balances that are never
// partitioned by year.
const CareerYear = 0

// Resets reports whether the window restarts every accounting year.
func (pt PeriodType) Resets() bool {
	return pt == PeriodCalendarYear
}

// YearFor returns the accounting-year key for a date under this period type.
func (pt PeriodType) YearFor(d Date) int {
	if pt.Resets() {
		return d.Year()
	}
	return CareerYear
}

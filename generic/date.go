/*
date.go - Calendar dates and working-day arithmetic

PURPOSE:
  Leave is booked in whole calendar days, so the engine works on a Date value
  (a UTC midnight) instead of raw time.Time. Everything that needs to know
  "how long has this person worked here" or "how many working days does this
  request cover" goes through the helpers in this file.

KEY FUNCTIONS:
  MonthsBetween:        Whole months of service, "age in months" semantics
  WorkingDaysInclusive: Monday-Friday count in [start, end]

MONTHS BETWEEN:
  Counts calendar months and drops the last one if it is not complete yet:

    2022-07-10 -> 2025-01-10  = 30 months
    2022-07-10 -> 2025-01-09  = 29 months (the 30th month ends on the 10th)
    2025-03-01 -> 2025-02-01  =  0 months (as-of before start clamps to 0)

ENCODING:
  Date marshals as "YYYY-MM-DD" in JSON and in SQL text columns. ParseDate
  also accepts RFC3339 so API clients can send full timestamps.

SEE ALSO:
  - period.go: Accounting periods built from dates
  - errors.go: InvalidRangeError
  - leave/accrual.go: Uses MonthsBetween for EARNED accrual
*/
package generic

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// =============================================================================
// DATE - A calendar day
// =============================================================================

// Date is a calendar day in UTC. The zero value is "no date".
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts YYYY-MM-DD or RFC3339.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals in tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return DateOf(d.t.AddDate(0, 0, n)) }
func (d Date) AddMonths(n int) Date { return DateOf(d.t.AddDate(0, n, 0)) }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) IsWorkday() bool { return !d.IsWeekend() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// =============================================================================
// ENCODING - JSON text and SQL columns
// =============================================================================

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case time.Time:
		*d = DateOf(v.UTC())
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// =============================================================================
// SERVICE DURATION AND WORKING DAYS
// =============================================================================

// MonthsBetween returns the whole calendar months elapsed from `from` to `to`.
// A final month is only counted once to's day-of-month reaches from's.
// Negative spans clamp to 0.
func MonthsBetween(from, to Date) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// WorkingDaysInclusive counts Monday-Friday days in [start, end].
// A reversed range is a caller contract violation and returns *InvalidRangeError.
func WorkingDaysInclusive(start, end Date) (int, error) {
	period := Period{Start: start, End: end}
	if err := period.Validate(); err != nil {
		return 0, err
	}

	count := 0
	for _, day := range period.Days() {
		if day.IsWorkday() {
			count++
		}
	}
	return count, nil
}

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date   { return NewDate(year, time.December, 31) }

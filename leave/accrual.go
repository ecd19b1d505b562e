/*
accrual.go - Entitlement arithmetic

PURPOSE:
  ComputeEntitlement answers "how many days of this category has the employee
  been allocated as of this date". It is pure: no store, no clock.

  It is the only place an AccrualRule is turned into a number. Everything
  else (the ledger, lazy row creation, the accrual timeline) calls it.

FORMULAS:
  fixed:              Days
  per_service_block:  Days * floor(MonthsBetween(serviceStart, asOf) / BlockMonths)

  With the default table:
    MEDICAL  365
    CASUAL   12 (whether it applies to a year is the ledger's decision)
    EARNED   6 * floor(months / 6)

    serviceStart 2022-07-10, asOf 2025-01-10 -> 30 months -> EARNED 30
    serviceStart 2023-01-01, asOf 2025-01-01 -> 24 months -> EARNED 24

TIMELINE:
  AccrualTimeline and NextAccrual describe when entitlement changes. They do
  not know the formula; they sample ComputeEntitlement and report the steps.

SEE ALSO:
  - policies.go: The rule table
  - balance.go: The ledger that consumes entitlement
  - generic/date.go: MonthsBetween
*/
package leave

import (
	"github.com/warp/leave-engine/generic"
)

// ComputeEntitlement returns the days of category c allocated to an employee
// whose service began on serviceStart, as of asOf.
//
// Never negative. Non-decreasing as asOf advances.
func ComputeEntitlement(c Category, serviceStart, asOf generic.Date) int {
	rule := MustPolicy(c).Accrual
	switch rule.Kind {
	case AccrualPerServiceBlock:
		if rule.BlockMonths <= 0 {
			return 0
		}
		blocks := generic.MonthsBetween(serviceStart, asOf) / rule.BlockMonths
		return rule.Days * blocks
	default:
		return rule.Days
	}
}

// =============================================================================
// ACCRUAL TIMELINE
// =============================================================================

// AccrualEvent is a step in a category's entitlement.
type AccrualEvent struct {
	Category Category
	At       generic.Date
	Days     int // Increase on this date
	Total    int // Entitlement after the increase
	Reason   string
}

// anniversarySlack bounds the distance between serviceStart.AddMonths(n)
// and the day MonthsBetween first reaches n.
const anniversarySlack = 4

const (
	reasonCareerGrant = "career allocation"
	reasonAnnualGrant = "annual allocation"
	reasonServiceStep = "service accrual"
)

// AccrualTimeline lists the entitlement events of c in [from, to].
//
//	fixed, career window:    one event on serviceStart
//	fixed, resetting window: one event per accounting year (serviceStart in
//	                         the first year)
//	growing rules:           one event per service block, on the day the
//	                         entitlement increases
func AccrualTimeline(c Category, serviceStart, from, to generic.Date) []AccrualEvent {
	if from.Before(serviceStart) {
		from = serviceStart
	}
	if from.After(to) {
		return nil
	}

	policy := MustPolicy(c)
	window := generic.Period{Start: from, End: to}
	var events []AccrualEvent

	switch {
	case policy.Accrual.Kind == AccrualFixed && policy.Period.Resets():
		for year := from.Year(); year <= to.Year(); year++ {
			at := generic.StartOfYear(year)
			if at.Before(serviceStart) {
				at = serviceStart
			}
			if !window.Contains(at) {
				continue
			}
			days := ComputeEntitlement(c, serviceStart, at)
			events = append(events, AccrualEvent{Category: c, At: at, Days: days, Total: days, Reason: reasonAnnualGrant})
		}

	case policy.Accrual.Kind == AccrualFixed:
		if window.Contains(serviceStart) {
			days := ComputeEntitlement(c, serviceStart, serviceStart)
			events = append(events, AccrualEvent{Category: c, At: serviceStart, Days: days, Total: days, Reason: reasonCareerGrant})
		}

	default:
		// Steps fall on service anniversaries every BlockMonths. Only the few
		// days around each anniversary are sampled; month-end starts land a
		// couple of days off the AddMonths date.
		block := policy.Accrual.BlockMonths
		k := max(1, generic.MonthsBetween(serviceStart, from)/block)
		for ; ; k++ {
			anniversary := serviceStart.AddMonths(k * block)
			lo, hi := anniversary.AddDays(-anniversarySlack), anniversary.AddDays(anniversarySlack)
			if lo.After(to) {
				break
			}
			if lo.Before(from) {
				lo = from
			}
			if hi.After(to) {
				hi = to
			}
			prev := ComputeEntitlement(c, serviceStart, lo.AddDays(-1))
			for day := lo; day.BeforeOrEqual(hi); day = day.AddDays(1) {
				total := ComputeEntitlement(c, serviceStart, day)
				if total > prev {
					events = append(events, AccrualEvent{Category: c, At: day, Days: total - prev, Total: total, Reason: reasonServiceStep})
				}
				prev = total
			}
		}
	}

	return events
}

// NextAccrual returns the first entitlement event strictly after asOf.
// ok is false when the category never changes again (career grants).
func NextAccrual(c Category, serviceStart, asOf generic.Date) (AccrualEvent, bool) {
	policy := MustPolicy(c)
	from := asOf.AddDays(1)

	var horizon generic.Date
	switch {
	case policy.Accrual.Kind == AccrualFixed && policy.Period.Resets():
		horizon = generic.EndOfYear(from.Year() + 1)
	case policy.Accrual.Kind == AccrualFixed:
		if serviceStart.Before(from) {
			return AccrualEvent{}, false
		}
		horizon = serviceStart
	default:
		// One block past the later of asOf and serviceStart always holds a step.
		base := from
		if base.Before(serviceStart) {
			base = serviceStart
		}
		horizon = base.AddMonths(policy.Accrual.BlockMonths + 1)
	}

	events := AccrualTimeline(c, serviceStart, from, horizon)
	if len(events) == 0 {
		return AccrualEvent{}, false
	}
	return events[0], true
}

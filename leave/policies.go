/*
policies.go - The leave policy table

PURPOSE:
  Static rule definitions for the three leave categories. A Policy says how
  much a category allocates, over which window, whether unused days carry
  forward, and how many consecutive days are recommended at most.

THE TABLE:
  Category  Allocation               Period          Carry-forward  Soft max
  MEDICAL   365 fixed                career          n/a            30
  CASUAL    12 fixed                 calendar year   no             5
  EARNED    6 per 6 months service   rolling         yes            30

  The allocation rule is data (an AccrualRule); the arithmetic that turns it
  into days lives only in ComputeEntitlement (accrual.go).

SEE ALSO:
  - accrual.go: ComputeEntitlement
  - validate.go: Uses RecommendedMaxConsecutive for advisories
  - generic/period.go: PeriodType
*/
package leave

import (
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// POLICY
// =============================================================================

// Policy is the rule set of one leave category.
type Policy struct {
	Category Category
	Name     string

	// Allocation rule, evaluated by ComputeEntitlement
	Accrual AccrualRule

	// Window that usage is accounted over
	Period generic.PeriodType

	// Unused days survive into the next window
	CarryForward bool

	// Longer requests pass validation with an advisory
	RecommendedMaxConsecutive int
}

// AccrualKind selects how an AccrualRule allocates days.
type AccrualKind string

const (
	// AccrualFixed allocates Days regardless of service length.
	AccrualFixed AccrualKind = "fixed"

	// AccrualPerServiceBlock allocates Days for every completed block of
	// BlockMonths months of service.
	AccrualPerServiceBlock AccrualKind = "per_service_block"
)

type AccrualRule struct {
	Kind        AccrualKind
	Days        int
	BlockMonths int
}

var policyTable = map[Category]Policy{
	CategoryMedical: {
		Category:                  CategoryMedical,
		Name:                      "Medical Leave",
		Accrual:                   AccrualRule{Kind: AccrualFixed, Days: 365},
		Period:                    generic.PeriodCareer,
		RecommendedMaxConsecutive: 30,
	},
	CategoryCasual: {
		Category:                  CategoryCasual,
		Name:                      "Casual Leave",
		Accrual:                   AccrualRule{Kind: AccrualFixed, Days: 12},
		Period:                    generic.PeriodCalendarYear,
		CarryForward:              false,
		RecommendedMaxConsecutive: 5,
	},
	CategoryEarned: {
		Category:                  CategoryEarned,
		Name:                      "Earned Leave",
		Accrual:                   AccrualRule{Kind: AccrualPerServiceBlock, Days: 6, BlockMonths: 6},
		Period:                    generic.PeriodRolling,
		CarryForward:              true,
		RecommendedMaxConsecutive: 30,
	},
}

// PolicyFor returns the policy of a category.
func PolicyFor(c Category) (Policy, bool) {
	p, ok := policyTable[c]
	return p, ok
}

// MustPolicy panics on an unknown category. Categories reaching the engine
// have been through ParseCategory.
func MustPolicy(c Category) Policy {
	p, ok := policyTable[c]
	if !ok {
		panic(fmt.Sprintf("leave policy not defined: %q", c))
	}
	return p
}

// Policies returns the table in display order.
func Policies() []Policy {
	out := make([]Policy, 0, len(Categories))
	for _, c := range Categories {
		out = append(out, policyTable[c])
	}
	return out
}

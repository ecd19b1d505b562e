/*
balance.go - The balance ledger

PURPOSE:
  Turns entitlement plus approved-application history into balance rows, and
  keeps those rows current as applications change status.

TWO PATHS, ONE DEFINITION:
  RebuildBalances is the canonical definition of a balance:

    Total = ComputeEntitlement(category, serviceStart, asOf)
    Used  = sum of Days over approved applications in the row's scope

  ApplyTransition is the incremental path. It is derived from the same
  per-application contribution used by the rebuild, so the delta it applies
  is exactly the change a rebuild would observe:

    delta = contribution(to) - contribution(from)
    contribution(APPROVED) = Days, otherwise 0

    PENDING  -> APPROVED   Used += Days
    APPROVED -> REJECTED   Used -= Days
    PENDING  -> REJECTED   no-op

  Approve-then-reverse restores the original row exactly. The ledger never
  clamps Used; Available() is the clamped view.

SCOPE:
  Rows of a resetting category (CASUAL) are keyed by accounting year and only
  count applications starting in that year. Career rows (MEDICAL, EARNED)
  count everything.

DRIFT:
  Stored rows can diverge from a rebuild. Reconcile reports every differing
  row and Drift.Kind tells them apart:

    missing  no stored row yet (first use, new accounting year)
    usage    Used disagrees with approved history (manual override, corruption)
    accrual  only Total moved (EARNED grew with service)

  Only usage drift is a repair; accrual is the normal life of a career row.
  RefreshTotal applies the accrual part without a rebuild.

SEE ALSO:
  - accrual.go: ComputeEntitlement
  - service.go: Composes these with a transactional Store
*/
package leave

import (
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// FULL RECOMPUTE
// =============================================================================

// contribution is what one application adds to Used in a rebuild.
func contribution(s Status, days int) int {
	if s == StatusApproved {
		return days
	}
	return 0
}

// inScope reports whether app counts toward the row (employeeID, c, year).
func inScope(app Application, employeeID string, c Category, year int) bool {
	if app.EmployeeID != employeeID || app.Category != c {
		return false
	}
	return MustPolicy(c).Period.YearFor(app.Start) == year
}

// RebuildBalance recomputes one row from scratch.
// Applications outside the row's scope, or not approved, are ignored.
func RebuildBalance(employeeID string, c Category, year int, serviceStart, asOf generic.Date, applications []Application) Balance {
	b := Balance{
		EmployeeID: employeeID,
		Category:   c,
		Year:       year,
		Total:      ComputeEntitlement(c, serviceStart, asOf),
	}
	for _, app := range applications {
		if inScope(app, employeeID, c, year) {
			b.Used += contribution(app.Status, app.Days)
		}
	}
	return b
}

// RebuildBalances recomputes every category for the accounting year of asOf.
// Idempotent: the same inputs always produce the same rows.
func RebuildBalances(employeeID string, serviceStart, asOf generic.Date, approved []Application) map[Category]Balance {
	out := make(map[Category]Balance, len(Categories))
	for _, c := range Categories {
		year := MustPolicy(c).Period.YearFor(asOf)
		out[c] = RebuildBalance(employeeID, c, year, serviceStart, asOf, approved)
	}
	return out
}

// =============================================================================
// INCREMENTAL UPDATE
// =============================================================================

// Account carries what lazy row creation needs to compute an entitlement.
type Account struct {
	EmployeeID   string
	ServiceStart generic.Date
	AsOf         generic.Date
}

// Transition is one application moving between statuses.
type Transition struct {
	Category Category
	Days     int
	From     Status
	To       Status
	Year     int
}

// TransitionFor builds the transition of app into status `to`.
func TransitionFor(app Application, to Status) Transition {
	return Transition{
		Category: app.Category,
		Days:     app.Days,
		From:     app.Status,
		To:       to,
		Year:     app.Key().Year,
	}
}

// Delta is the change to Used.
func (t Transition) Delta() int {
	return contribution(t.To, t.Days) - contribution(t.From, t.Days)
}

// Kind names the journal entry for a transition that touches the ledger.
func (t Transition) Kind() JournalKind {
	if t.To == StatusApproved {
		return JournalApproval
	}
	return JournalReversal
}

// ApplyTransition applies t to existing and reports whether the row changed.
//
// A nil existing row is created with the entitlement as Total and no usage
// before the delta is applied; a no-op transition still returns that row. Callers that can see the application history
// should materialize the row with RebuildBalance first.
//
// Not safe on stale copies: callers must read, apply and write the row within
// one transaction.
func ApplyTransition(acct Account, existing *Balance, t Transition) (Balance, bool) {
	var b Balance
	if existing != nil {
		b = *existing
	} else {
		b = Balance{
			EmployeeID: acct.EmployeeID,
			Category:   t.Category,
			Year:       t.Year,
			Total:      ComputeEntitlement(t.Category, acct.ServiceStart, acct.AsOf),
		}
	}

	delta := t.Delta()
	if delta == 0 {
		return b, false
	}
	b.Used += delta
	return b, true
}

// RefreshTotal returns b with Total recomputed as of asOf. Only rows of
// non-resetting categories move: their entitlement grows with service, while
// a resetting row's allocation is fixed for its year. Used is never touched.
func RefreshTotal(b Balance, serviceStart, asOf generic.Date) Balance {
	if MustPolicy(b.Category).Period.Resets() {
		return b
	}
	b.Total = ComputeEntitlement(b.Category, serviceStart, asOf)
	return b
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Drift is a stored row that disagrees with a rebuild.
// Stored is nil when the row was missing.
type Drift struct {
	Category Category
	Year     int
	Stored   *Balance
	Rebuilt  Balance
}

// DriftKind classifies a difference between a stored row and a rebuild.
type DriftKind string

const (
	DriftMissing DriftKind = "missing" // No stored row
	DriftUsage   DriftKind = "usage"   // Used disagrees with the approved history
	DriftAccrual DriftKind = "accrual" // Only Total moved: entitlement changed with asOf
)

func (d Drift) Kind() DriftKind {
	switch {
	case d.Stored == nil:
		return DriftMissing
	case d.Stored.Used != d.Rebuilt.Used:
		return DriftUsage
	default:
		return DriftAccrual
	}
}

// UsedDelta is the correction a rebuild applies to Used.
func (d Drift) UsedDelta() int {
	if d.Stored == nil {
		return d.Rebuilt.Used
	}
	return d.Rebuilt.Used - d.Stored.Used
}

// Reconcile compares stored rows against rebuilt ones, in category order.
// Stored rows with no rebuilt counterpart (another year) are ignored.
func Reconcile(stored []Balance, rebuilt map[Category]Balance) []Drift {
	byKey := make(map[BalanceKey]Balance, len(stored))
	for _, b := range stored {
		byKey[b.Key()] = b
	}

	var drifts []Drift
	for _, c := range Categories {
		want, ok := rebuilt[c]
		if !ok {
			continue
		}
		have, found := byKey[want.Key()]
		switch {
		case !found:
			drifts = append(drifts, Drift{Category: c, Year: want.Year, Rebuilt: want})
		case have.Total != want.Total || have.Used != want.Used:
			h := have
			drifts = append(drifts, Drift{Category: c, Year: want.Year, Stored: &h, Rebuilt: want})
		}
	}
	return drifts
}

// SortedBalances returns the rows of m in category order.
func SortedBalances(m map[Category]Balance) []Balance {
	out := make([]Balance, 0, len(m))
	for _, c := range Categories {
		if b, ok := m[c]; ok {
			out = append(out, b)
		}
	}
	return out
}

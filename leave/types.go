// Package leave implements the leave entitlement engine: the policy table,
// entitlement accrual, the balance ledger, application validation and the
// service that composes them with a Store.
package leave

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE CATEGORY
// =============================================================================

// Category is a kind of leave with its own accrual and depletion rules.
type Category string

const (
	CategoryMedical Category = "MEDICAL"
	CategoryCasual  Category = "CASUAL"
	CategoryEarned  Category = "EARNED"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryMedical, CategoryCasual, CategoryEarned}

func (c Category) Valid() bool {
	_, ok := policyTable[c]
	return ok
}

// ParseCategory is case-insensitive ("casual" == "CASUAL").
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", generic.ErrInvalidCategory, s)
	}
	return c, nil
}

// =============================================================================
// APPLICATION STATUS
// =============================================================================

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", generic.ErrInvalidStatus, s)
	}
	return st, nil
}

// =============================================================================
// EMPLOYEE AND APPLICATION
// =============================================================================

// Employee is owned by the HR system. The engine only reads ServiceStart.
type Employee struct {
	ID           string
	Name         string
	Email        string
	ServiceStart generic.Date
	CreatedAt    time.Time
}

// Application is a request for leave over [Start, End].
// Days is derived from the range when the application is submitted.
type Application struct {
	ID         string
	EmployeeID string
	Category   Category
	Start      generic.Date
	End        generic.Date
	Days       int
	Status     Status
	Reason     string
	DecidedBy  string
	Revision   int // bumped on every status change
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Key returns the balance row this application draws from.
func (a Application) Key() BalanceKey {
	return KeyFor(a.EmployeeID, a.Category, a.Start)
}

// =============================================================================
// BALANCE
// =============================================================================

// BalanceKey identifies a balance row. Year is the accounting year for
// categories that reset and generic.CareerYear for the others.
type BalanceKey struct {
	EmployeeID string
	Category   Category
	Year       int
}

// KeyFor returns the row that a leave day on `on` is accounted against.
func KeyFor(employeeID string, c Category, on generic.Date) BalanceKey {
	return BalanceKey{
		EmployeeID: employeeID,
		Category:   c,
		Year:       MustPolicy(c).Period.YearFor(on),
	}
}

func (k BalanceKey) String() string {
	if k.Year == generic.CareerYear {
		return fmt.Sprintf("%s/%s/career", k.EmployeeID, k.Category)
	}
	return fmt.Sprintf("%s/%s/%d", k.EmployeeID, k.Category, k.Year)
}

// Balance is the allocation and usage of one category for one employee.
//
// INVARIANT: Remaining() == Total - Used after every mutation. Used may exceed
// Total after a manual override; Available() never goes below zero.
type Balance struct {
	EmployeeID string
	Category   Category
	Year       int
	Total      int
	Used       int
}

func (b Balance) Key() BalanceKey {
	return BalanceKey{EmployeeID: b.EmployeeID, Category: b.Category, Year: b.Year}
}

// Remaining is the raw difference; negative when overdrawn.
func (b Balance) Remaining() int { return b.Total - b.Used }

// Available is what can still be requested.
func (b Balance) Available() int { return max(0, b.Remaining()) }

// Overdrawn reports usage beyond the allocation.
func (b Balance) Overdrawn() bool { return b.Used > b.Total }

var hundred = decimal.NewFromInt(100)

// Utilization is Used as a percentage of Total, rounded to two places.
func (b Balance) Utilization() decimal.Decimal {
	if b.Total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(b.Used)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(b.Total)), 2)
}

// =============================================================================
// JOURNAL - Append-only record of balance mutations
// =============================================================================

type JournalKind string

const (
	JournalCreated        JournalKind = "created"         // Row materialized lazily
	JournalApproval       JournalKind = "approval"        // Transition into APPROVED
	JournalReversal       JournalKind = "reversal"        // Transition out of APPROVED
	JournalManualOverride JournalKind = "manual_override" // Admin set Used directly
	JournalRebuild        JournalKind = "rebuild"         // Full recompute corrected usage drift
	JournalAccrual        JournalKind = "accrual"         // Total moved with the entitlement
)

// JournalEntry records one balance mutation with the state it produced.
type JournalEntry struct {
	ID             string
	EmployeeID     string
	Category       Category
	Year           int
	Kind           JournalKind
	UsedDelta      int
	TotalAfter     int
	UsedAfter      int
	ApplicationID  string
	Actor          string
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

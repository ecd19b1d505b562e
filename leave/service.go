package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// SERVICE - Application lifecycle with transactional guarantees
// =============================================================================

// Service composes the pure engine with a Store. Every balance mutation runs
// inside Store.WithTx so the read-modify-write of a row is atomic.
type Service struct {
	Store  Store
	Logger *slog.Logger

	// Now is the clock; tests pin it.
	Now func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Logger: logger, Now: time.Now}
}

func (s *Service) today() generic.Date {
	return generic.DateOf(s.Now())
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// RegisterEmployee stores e and materializes its balance rows as of today.
func (s *Service) RegisterEmployee(ctx context.Context, e Employee) (Employee, error) {
	if e.ServiceStart.IsZero() {
		return Employee{}, fmt.Errorf("%w: service start date is required", generic.ErrInvalidInput)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.Now().UTC()
	}

	err := s.Store.WithTx(ctx, func(repo Repository) error {
		if err := repo.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("failed to save employee: %w", err)
		}
		_, err := s.rebuild(ctx, repo, e, s.today())
		return err
	})
	if err != nil {
		return Employee{}, err
	}

	s.Logger.Info("employee registered", "employee_id", e.ID, "service_start", e.ServiceStart.String())
	return e, nil
}

func (s *Service) Employee(ctx context.Context, id string) (*Employee, error) {
	return loadEmployee(ctx, s.Store, id)
}

func (s *Service) Employees(ctx context.Context) ([]Employee, error) {
	return s.Store.ListEmployees(ctx)
}

func loadEmployee(ctx context.Context, repo Repository, id string) (*Employee, error) {
	e, err := repo.GetEmployee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, id)
	}
	return e, nil
}

// =============================================================================
// SUBMIT - Validate and persist a PENDING application
// =============================================================================

// Submission is a request to apply for leave.
type Submission struct {
	EmployeeID string
	Category   Category
	Start      generic.Date
	End        generic.Date
	Reason     string

	// Force submits despite overridable blocking messages.
	Force bool
}

// Check validates sub against the current balance without writing anything.
func (s *Service) Check(ctx context.Context, sub Submission) (Result, int, error) {
	if !sub.Category.Valid() {
		return Result{}, 0, fmt.Errorf("%w: %q", generic.ErrInvalidCategory, sub.Category)
	}
	e, err := loadEmployee(ctx, s.Store, sub.EmployeeID)
	if err != nil {
		return Result{}, 0, err
	}

	today := s.today()
	key := KeyFor(e.ID, sub.Category, sub.Start)
	bal, err := s.Store.GetBalance(ctx, key)
	if err != nil {
		return Result{}, 0, fmt.Errorf("failed to load balance: %w", err)
	}
	if bal == nil {
		approved, err := s.Store.ListApplications(ctx, ApplicationFilter{EmployeeID: e.ID, Status: StatusApproved})
		if err != nil {
			return Result{}, 0, fmt.Errorf("failed to load applications: %w", err)
		}
		b := RebuildBalance(e.ID, sub.Category, key.Year, e.ServiceStart, today, approved)
		bal = &b
	} else {
		b := RefreshTotal(*bal, e.ServiceStart, today)
		bal = &b
	}

	days := requestedDays(sub.Start, sub.End)
	return Validate(proposal(sub, days, *bal, today)), days, nil
}

// Submit validates sub and stores it as a PENDING application.
//
// A blocking Result is returned as *ValidationFailure unless sub.Force is set
// and every blocking message is overridable. The Result is returned either way.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Application, Result, error) {
	if !sub.Category.Valid() {
		return nil, Result{}, fmt.Errorf("%w: %q", generic.ErrInvalidCategory, sub.Category)
	}
	if sub.Start.IsZero() || sub.End.IsZero() {
		return nil, Result{}, fmt.Errorf("%w: start and end dates are required", generic.ErrInvalidInput)
	}

	var (
		app    Application
		result Result
	)
	err := s.Store.WithTx(ctx, func(repo Repository) error {
		e, err := loadEmployee(ctx, repo, sub.EmployeeID)
		if err != nil {
			return err
		}

		today := s.today()
		bal, err := s.ensureBalance(ctx, repo, *e, KeyFor(e.ID, sub.Category, sub.Start), today)
		if err != nil {
			return err
		}

		days := requestedDays(sub.Start, sub.End)
		result = Validate(proposal(sub, days, bal, today))
		if !result.OK {
			if !sub.Force || !result.Overridable() {
				return &ValidationFailure{Result: result}
			}
			s.Logger.Warn("submission forced past validation",
				"employee_id", e.ID, "category", string(sub.Category), "messages", result.Texts())
		}

		now := s.Now().UTC()
		app = Application{
			ID:         uuid.NewString(),
			EmployeeID: e.ID,
			Category:   sub.Category,
			Start:      sub.Start,
			End:        sub.End,
			Days:       days,
			Status:     StatusPending,
			Reason:     sub.Reason,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := repo.SaveApplication(ctx, app); err != nil {
			return fmt.Errorf("failed to save application: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, result, err
	}

	s.Logger.Info("application submitted",
		"application_id", app.ID, "employee_id", app.EmployeeID,
		"category", string(app.Category), "days", app.Days)
	return &app, result, nil
}

// requestedDays is 0 for a reversed range so validation reports it.
func requestedDays(start, end generic.Date) int {
	days, err := generic.WorkingDaysInclusive(start, end)
	if err != nil {
		return 0
	}
	return days
}

func proposal(sub Submission, days int, bal Balance, today generic.Date) Proposal {
	return Proposal{
		Category:  sub.Category,
		Days:      days,
		Remaining: bal.Available(),
		Start:     sub.Start,
		End:       sub.End,
		Today:     today,
	}
}

// =============================================================================
// TRANSITION - Approve, reject, reopen
// =============================================================================

// Approve moves an application to APPROVED.
func (s *Service) Approve(ctx context.Context, appID, actor string) (*Application, error) {
	return s.Transition(ctx, appID, StatusApproved, actor)
}

// Reject moves an application to REJECTED, reversing it if it was approved.
func (s *Service) Reject(ctx context.Context, appID, actor string) (*Application, error) {
	return s.Transition(ctx, appID, StatusRejected, actor)
}

// Reopen moves an application back to PENDING.
func (s *Service) Reopen(ctx context.Context, appID, actor string) (*Application, error) {
	return s.Transition(ctx, appID, StatusPending, actor)
}

// Transition changes an application's status and applies the ledger delta,
// atomically. Same-status transitions are a no-op.
func (s *Service) Transition(ctx context.Context, appID string, to Status, actor string) (*Application, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", generic.ErrInvalidStatus, to)
	}

	var app *Application
	err := s.Store.WithTx(ctx, func(repo Repository) error {
		var err error
		app, err = repo.GetApplication(ctx, appID)
		if err != nil {
			return fmt.Errorf("failed to load application: %w", err)
		}
		if app == nil {
			return fmt.Errorf("%w: %s", generic.ErrApplicationNotFound, appID)
		}
		if app.Status == to {
			return nil
		}

		e, err := loadEmployee(ctx, repo, app.EmployeeID)
		if err != nil {
			return err
		}

		t := TransitionFor(*app, to)
		if t.Delta() != 0 {
			existing, err := s.ensureBalance(ctx, repo, *e, app.Key(), s.today())
			if err != nil {
				return err
			}
			acct := Account{EmployeeID: e.ID, ServiceStart: e.ServiceStart, AsOf: s.today()}
			updated, _ := ApplyTransition(acct, &existing, t)
			if err := repo.SaveBalance(ctx, updated); err != nil {
				return fmt.Errorf("failed to save balance: %w", err)
			}
			if err := s.journal(ctx, repo, JournalEntry{
				EmployeeID:     e.ID,
				Category:       updated.Category,
				Year:           updated.Year,
				Kind:           t.Kind(),
				UsedDelta:      t.Delta(),
				TotalAfter:     updated.Total,
				UsedAfter:      updated.Used,
				ApplicationID:  app.ID,
				Actor:          actor,
				IdempotencyKey: fmt.Sprintf("%s/r%d", app.ID, app.Revision),
			}); err != nil {
				return err
			}
			if updated.Overdrawn() {
				s.Logger.Warn("balance overdrawn",
					"employee_id", e.ID, "category", string(updated.Category),
					"total", updated.Total, "used", updated.Used)
			}
		}

		app.Status = to
		app.DecidedBy = actor
		app.Revision++
		app.UpdatedAt = s.Now().UTC()
		if err := repo.SaveApplication(ctx, *app); err != nil {
			return fmt.Errorf("failed to save application: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("application transitioned",
		"application_id", app.ID, "status", string(app.Status), "actor", actor)
	return app, nil
}

// =============================================================================
// REBUILD - The canonical recompute
// =============================================================================

// RebuildReport is the outcome of rebuilding one employee.
// Drift holds usage corrections only; entitlement growth is in Accrued and
// first-time rows in Created.
type RebuildReport struct {
	EmployeeID string
	AsOf       generic.Date
	Balances   []Balance
	Drift      []Drift
	Accrued    []Drift
	Created    []Drift
}

// Rebuild recomputes the employee's rows for the accounting year of asOf and
// the career rows, overwriting whatever was stored. Differences are
// journaled and logged before they are overwritten.
func (s *Service) Rebuild(ctx context.Context, employeeID string, asOf generic.Date) (*RebuildReport, error) {
	var report *RebuildReport
	err := s.Store.WithTx(ctx, func(repo Repository) error {
		e, err := loadEmployee(ctx, repo, employeeID)
		if err != nil {
			return err
		}
		report, err = s.rebuild(ctx, repo, *e, asOf)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Service) rebuild(ctx context.Context, repo Repository, e Employee, asOf generic.Date) (*RebuildReport, error) {
	approved, err := repo.ListApplications(ctx, ApplicationFilter{EmployeeID: e.ID, Status: StatusApproved})
	if err != nil {
		return nil, fmt.Errorf("failed to load applications: %w", err)
	}
	stored, err := repo.ListBalances(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}

	rebuilt := RebuildBalances(e.ID, e.ServiceStart, asOf, approved)
	report := &RebuildReport{
		EmployeeID: e.ID,
		AsOf:       asOf,
		Balances:   SortedBalances(rebuilt),
	}

	for _, d := range Reconcile(stored, rebuilt) {
		var kind JournalKind
		switch d.Kind() {
		case DriftMissing:
			kind = JournalCreated
			report.Created = append(report.Created, d)
		case DriftUsage:
			kind = JournalRebuild
			report.Drift = append(report.Drift, d)
			s.Logger.Warn("balance drift corrected",
				"employee_id", e.ID, "category", string(d.Category), "year", d.Year,
				"stored_total", d.Stored.Total, "stored_used", d.Stored.Used,
				"rebuilt_total", d.Rebuilt.Total, "rebuilt_used", d.Rebuilt.Used)
		case DriftAccrual:
			kind = JournalAccrual
			report.Accrued = append(report.Accrued, d)
			s.Logger.Info("entitlement accrued",
				"employee_id", e.ID, "category", string(d.Category),
				"from", d.Stored.Total, "to", d.Rebuilt.Total, "as_of", asOf.String())
		}

		if err := repo.SaveBalance(ctx, d.Rebuilt); err != nil {
			return nil, fmt.Errorf("failed to save balance: %w", err)
		}
		if err := s.journal(ctx, repo, JournalEntry{
			EmployeeID: e.ID,
			Category:   d.Category,
			Year:       d.Year,
			Kind:       kind,
			UsedDelta:  d.UsedDelta(),
			TotalAfter: d.Rebuilt.Total,
			UsedAfter:  d.Rebuilt.Used,
			Actor:      "system",
			Reason:     "rebuild as of " + asOf.String(),
		}); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// RebuildAll rebuilds every employee. A failure for one employee does not
// stop the others; all failures are joined into the returned error.
func (s *Service) RebuildAll(ctx context.Context, asOf generic.Date) ([]RebuildReport, error) {
	employees, err := s.Store.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}

	var (
		reports []RebuildReport
		errs    []error
	)
	for _, e := range employees {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := s.Rebuild(ctx, e.ID, asOf)
		if err != nil {
			errs = append(errs, fmt.Errorf("employee %s: %w", e.ID, err))
			continue
		}
		reports = append(reports, *report)
	}
	return reports, errors.Join(errs...)
}

// =============================================================================
// MANUAL OVERRIDE
// =============================================================================

// AdjustUsed sets Used on a row directly. The next rebuild replaces it.
func (s *Service) AdjustUsed(ctx context.Context, key BalanceKey, used int, actor, reason string) (*Balance, error) {
	if used < 0 {
		return nil, fmt.Errorf("%w: used must not be negative", generic.ErrInvalidInput)
	}
	if !key.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", generic.ErrInvalidCategory, key.Category)
	}
	if MustPolicy(key.Category).Period.Resets() {
		if key.Year == generic.CareerYear {
			return nil, fmt.Errorf("%w: %s balances need a year", generic.ErrInvalidInput, key.Category)
		}
	} else {
		key.Year = generic.CareerYear
	}

	var out Balance
	err := s.Store.WithTx(ctx, func(repo Repository) error {
		e, err := loadEmployee(ctx, repo, key.EmployeeID)
		if err != nil {
			return err
		}
		b, err := s.ensureBalance(ctx, repo, *e, key, s.today())
		if err != nil {
			return err
		}

		delta := used - b.Used
		b.Used = used
		if err := repo.SaveBalance(ctx, b); err != nil {
			return fmt.Errorf("failed to save balance: %w", err)
		}
		out = b
		return s.journal(ctx, repo, JournalEntry{
			EmployeeID: e.ID,
			Category:   b.Category,
			Year:       b.Year,
			Kind:       JournalManualOverride,
			UsedDelta:  delta,
			TotalAfter: b.Total,
			UsedAfter:  b.Used,
			Actor:      actor,
			Reason:     reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Warn("balance manually adjusted",
		"balance", key.String(), "used", used, "actor", actor, "reason", reason)
	return &out, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Balances returns one row per category for the accounting year of asOf,
// creating missing rows.
func (s *Service) Balances(ctx context.Context, employeeID string, asOf generic.Date) ([]Balance, error) {
	var out []Balance
	err := s.Store.WithTx(ctx, func(repo Repository) error {
		e, err := loadEmployee(ctx, repo, employeeID)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, c := range Categories {
			b, err := s.ensureBalance(ctx, repo, *e, KeyFor(e.ID, c, asOf), asOf)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Application(ctx context.Context, id string) (*Application, error) {
	app, err := s.Store.GetApplication(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if app == nil {
		return nil, fmt.Errorf("%w: %s", generic.ErrApplicationNotFound, id)
	}
	return app, nil
}

func (s *Service) Applications(ctx context.Context, filter ApplicationFilter) ([]Application, error) {
	if filter.EmployeeID != "" {
		if _, err := loadEmployee(ctx, s.Store, filter.EmployeeID); err != nil {
			return nil, err
		}
	}
	return s.Store.ListApplications(ctx, filter)
}

func (s *Service) PendingApplications(ctx context.Context) ([]Application, error) {
	return s.Store.ListApplications(ctx, ApplicationFilter{Status: StatusPending})
}

func (s *Service) Journal(ctx context.Context, employeeID string, limit int) ([]JournalEntry, error) {
	if _, err := loadEmployee(ctx, s.Store, employeeID); err != nil {
		return nil, err
	}
	return s.Store.ListJournal(ctx, employeeID, limit)
}

// Accruals returns the entitlement events of every category in [from, to].
func (s *Service) Accruals(ctx context.Context, employeeID string, from, to generic.Date) ([]AccrualEvent, error) {
	if err := (generic.Period{Start: from, End: to}).Validate(); err != nil {
		return nil, err
	}
	e, err := loadEmployee(ctx, s.Store, employeeID)
	if err != nil {
		return nil, err
	}

	var events []AccrualEvent
	for _, c := range Categories {
		events = append(events, AccrualTimeline(c, e.ServiceStart, from, to)...)
	}
	return events, nil
}

// UpcomingAccruals returns, per category, the next entitlement change after
// asOf. Categories that never change again are left out.
func (s *Service) UpcomingAccruals(ctx context.Context, employeeID string, asOf generic.Date) ([]AccrualEvent, error) {
	e, err := loadEmployee(ctx, s.Store, employeeID)
	if err != nil {
		return nil, err
	}

	var events []AccrualEvent
	for _, c := range Categories {
		if next, ok := NextAccrual(c, e.ServiceStart, asOf); ok {
			events = append(events, next)
		}
	}
	return events, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// ensureBalance returns the row for key with its Total as of asOf, creating
// it from the approved history when missing.
func (s *Service) ensureBalance(ctx context.Context, repo Repository, e Employee, key BalanceKey, asOf generic.Date) (Balance, error) {
	existing, err := repo.GetBalance(ctx, key)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to load balance: %w", err)
	}
	if existing != nil {
		return s.refreshTotal(ctx, repo, e, *existing, asOf)
	}

	approved, err := repo.ListApplications(ctx, ApplicationFilter{EmployeeID: e.ID, Status: StatusApproved})
	if err != nil {
		return Balance{}, fmt.Errorf("failed to load applications: %w", err)
	}
	b := RebuildBalance(e.ID, key.Category, key.Year, e.ServiceStart, asOf, approved)
	if err := repo.SaveBalance(ctx, b); err != nil {
		return Balance{}, fmt.Errorf("failed to save balance: %w", err)
	}
	if err := s.journal(ctx, repo, JournalEntry{
		EmployeeID: e.ID,
		Category:   b.Category,
		Year:       b.Year,
		Kind:       JournalCreated,
		UsedDelta:  b.Used,
		TotalAfter: b.Total,
		UsedAfter:  b.Used,
		Actor:      "system",
	}); err != nil {
		return Balance{}, err
	}

	s.Logger.Debug("balance row created", "balance", key.String(), "total", b.Total, "used", b.Used)
	return b, nil
}

// refreshTotal recomputes the Total of a stored career row as of asOf.
// The new Total is written back and journaled only when asOf is today; other
// dates get the recomputed view.
func (s *Service) refreshTotal(ctx context.Context, repo Repository, e Employee, stored Balance, asOf generic.Date) (Balance, error) {
	b := RefreshTotal(stored, e.ServiceStart, asOf)
	if b.Total == stored.Total || !asOf.Equal(s.today()) {
		return b, nil
	}

	if err := repo.SaveBalance(ctx, b); err != nil {
		return Balance{}, fmt.Errorf("failed to save balance: %w", err)
	}
	if err := s.journal(ctx, repo, JournalEntry{
		EmployeeID: e.ID,
		Category:   b.Category,
		Year:       b.Year,
		Kind:       JournalAccrual,
		TotalAfter: b.Total,
		UsedAfter:  b.Used,
		Actor:      "system",
		Reason:     fmt.Sprintf("entitlement %d -> %d as of %s", stored.Total, b.Total, asOf),
	}); err != nil {
		return Balance{}, err
	}

	s.Logger.Info("entitlement accrued",
		"employee_id", e.ID, "category", string(b.Category),
		"from", stored.Total, "to", b.Total, "as_of", asOf.String())
	return b, nil
}

func (s *Service) journal(ctx context.Context, repo Repository, entry JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.IdempotencyKey == "" {
		entry.IdempotencyKey = entry.ID
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.Now().UTC()
	}
	if err := repo.AppendJournal(ctx, entry); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

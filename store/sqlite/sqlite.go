/*
Package sqlite provides a SQLite-backed implementation of leave.Store.

PURPOSE:
  Persists employees, leave applications, balance rows and the balance
  journal. The engine computes; this package only reads and writes rows.

KEY TABLES:
  employees:        Service start date per employee
  applications:     Leave applications and their status
  balances:         One row per (employee_id, category, year); year 0 is the
                    career row of non-resetting categories
  balance_journal:  Append-only record of every balance mutation

SERIALIZATION:
  Balance rows are read, mutated and written back inside WithTx. WithTx holds
  the store mutex and the pool is capped at one connection, so two approvals
  against the same row can never interleave. It also keeps ":memory:"
  databases on a single connection; every connection to ":memory:" is a
  distinct database.

APPEND-ONLY JOURNAL:
  balance_journal has no UPDATE or DELETE path. idempotency_key is UNIQUE;
  a duplicate is reported as generic.ErrDuplicateIdempotencyKey.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := leave.NewService(store, logger)

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/service.go: The caller
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements leave.Store using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

var _ leave.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT,
		service_start TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		category TEXT NOT NULL CHECK (category IN ('MEDICAL', 'CASUAL', 'EARNED')),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		days INTEGER NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
		reason TEXT,
		decided_by TEXT,
		revision INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_employee_status
		ON applications(employee_id, status);
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON applications(status, start_date);

	-- year = 0 is the career row (MEDICAL, EARNED)
	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT NOT NULL REFERENCES employees(id),
		category TEXT NOT NULL,
		year INTEGER NOT NULL,
		total INTEGER NOT NULL,
		used INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, category, year)
	);

	-- Append-only
	CREATE TABLE IF NOT EXISTS balance_journal (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		category TEXT NOT NULL,
		year INTEGER NOT NULL,
		kind TEXT NOT NULL,
		used_delta INTEGER NOT NULL,
		total_after INTEGER NOT NULL,
		used_after INTEGER NOT NULL,
		application_id TEXT,
		actor TEXT,
		reason TEXT,
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_employee
		ON balance_journal(employee_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (leave.Store)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(repo leave.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"balance_journal", "balances", "applications", "employees"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES (leave.Repository) - Shared by the pool and by transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

// Employees

func (r *queries) SaveEmployee(ctx context.Context, e leave.Employee) error {
	query := `
		INSERT INTO employees (id, name, email, service_start, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			service_start = excluded.service_start
	`

	_, err := r.q.ExecContext(ctx, query,
		e.ID, e.Name, nullString(e.Email), e.ServiceStart, formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (r *queries) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT id, name, email, service_start, created_at FROM employees WHERE id = ?", id)

	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *queries) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, name, email, service_start, created_at FROM employees ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func scanEmployee(row scanner) (leave.Employee, error) {
	var (
		e         leave.Employee
		email     sql.NullString
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.Name, &email, &e.ServiceStart, &createdAt); err != nil {
		return e, err
	}
	e.Email = email.String
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// Applications

const applicationColumns = `id, employee_id, category, start_date, end_date, days, status,
	reason, decided_by, revision, created_at, updated_at`

func (r *queries) SaveApplication(ctx context.Context, app leave.Application) error {
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			decided_by = excluded.decided_by,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`

	_, err := r.q.ExecContext(ctx, query,
		app.ID, app.EmployeeID, string(app.Category), app.Start, app.End, app.Days,
		string(app.Status), nullString(app.Reason), nullString(app.DecidedBy), app.Revision,
		formatTime(app.CreatedAt), formatTime(app.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	return nil
}

func (r *queries) GetApplication(ctx context.Context, id string) (*leave.Application, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE id = ?", id)

	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *queries) ListApplications(ctx context.Context, filter leave.ApplicationFilter) ([]leave.Application, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}

	query := "SELECT " + applicationColumns + " FROM applications"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date ASC, created_at ASC"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []leave.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func scanApplication(row scanner) (leave.Application, error) {
	var (
		app                  leave.Application
		category, status     string
		reason, decidedBy    sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&app.ID, &app.EmployeeID, &category, &app.Start, &app.End, &app.Days, &status,
		&reason, &decidedBy, &app.Revision, &createdAt, &updatedAt,
	)
	if err != nil {
		return app, err
	}
	app.Category = leave.Category(category)
	app.Status = leave.Status(status)
	app.Reason = reason.String
	app.DecidedBy = decidedBy.String
	app.CreatedAt = parseTime(createdAt)
	app.UpdatedAt = parseTime(updatedAt)
	return app, nil
}

// Balances

func (r *queries) GetBalance(ctx context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	b := leave.Balance{EmployeeID: key.EmployeeID, Category: key.Category, Year: key.Year}
	err := r.q.QueryRowContext(ctx,
		"SELECT total, used FROM balances WHERE employee_id = ? AND category = ? AND year = ?",
		key.EmployeeID, string(key.Category), key.Year,
	).Scan(&b.Total, &b.Used)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance %s: %w", key, err)
	}
	return &b, nil
}

func (r *queries) SaveBalance(ctx context.Context, b leave.Balance) error {
	query := `
		INSERT INTO balances (employee_id, category, year, total, used, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, category, year) DO UPDATE SET
			total = excluded.total,
			used = excluded.used,
			updated_at = excluded.updated_at
	`

	_, err := r.q.ExecContext(ctx, query,
		b.EmployeeID, string(b.Category), b.Year, b.Total, b.Used,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save balance %s: %w", b.Key(), err)
	}
	return nil
}

func (r *queries) ListBalances(ctx context.Context, employeeID string) ([]leave.Balance, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT employee_id, category, year, total, used
		FROM balances
		WHERE employee_id = ?
		ORDER BY year DESC, category ASC
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []leave.Balance
	for rows.Next() {
		var (
			b        leave.Balance
			category string
		)
		if err := rows.Scan(&b.EmployeeID, &category, &b.Year, &b.Total, &b.Used); err != nil {
			return nil, err
		}
		b.Category = leave.Category(category)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// Journal

func (r *queries) AppendJournal(ctx context.Context, e leave.JournalEntry) error {
	query := `
		INSERT INTO balance_journal
		(id, employee_id, category, year, kind, used_delta, total_after, used_after,
		 application_id, actor, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, query,
		e.ID, e.EmployeeID, string(e.Category), e.Year, string(e.Kind),
		e.UsedDelta, e.TotalAfter, e.UsedAfter,
		nullString(e.ApplicationID), nullString(e.Actor), nullString(e.Reason),
		e.IdempotencyKey, formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", generic.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
		}
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// ListJournal returns the newest entries first. limit <= 0 returns all.
func (r *queries) ListJournal(ctx context.Context, employeeID string, limit int) ([]leave.JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, employee_id, category, year, kind, used_delta, total_after, used_after,
		       application_id, actor, reason, idempotency_key, created_at
		FROM balance_journal
		WHERE employee_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, employeeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []leave.JournalEntry
	for rows.Next() {
		var (
			e                    leave.JournalEntry
			category, kind       string
			appID, actor, reason sql.NullString
			createdAt            string
		)
		err := rows.Scan(
			&e.ID, &e.EmployeeID, &category, &e.Year, &kind, &e.UsedDelta, &e.TotalAfter, &e.UsedAfter,
			&appID, &actor, &reason, &e.IdempotencyKey, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Category = leave.Category(category)
		e.Kind = leave.JournalKind(kind)
		e.ApplicationID = appID.String
		e.Actor = actor.String
		e.Reason = reason.String
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

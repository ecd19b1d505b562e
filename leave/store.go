/*
store.go - Persistence interface for the leave engine

PURPOSE:
  Defines what the Service needs from a database. The engine itself is pure;
  this is the seam where rows are read, mutated and written back.

KEY INTERFACES:
  Repository: Reads and writes employees, applications, balances and journal
  Store:      Repository plus WithTx for atomic read-modify-write

ROW SERIALIZATION:
  Two approvals against the same balance row must not race. Every ledger
  mutation in the Service runs inside WithTx, and implementations must
  serialize those transactions (SQLite: a single connection).

JOURNAL:
  AppendJournal is append-only. A duplicate IdempotencyKey is rejected with
  generic.ErrDuplicateIdempotencyKey so a retried transition cannot apply
  twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go
  - store/memory/memory.go

SEE ALSO:
  - service.go: The only caller
*/
package leave

import "context"

// ApplicationFilter narrows ListApplications. Zero fields match everything.
type ApplicationFilter struct {
	EmployeeID string
	Status     Status
	Category   Category
}

// Repository is the read/write surface used inside and outside transactions.
// Getters return (nil, nil) when the row does not exist.
type Repository interface {
	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)

	SaveApplication(ctx context.Context, app Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)

	GetBalance(ctx context.Context, key BalanceKey) (*Balance, error)
	SaveBalance(ctx context.Context, b Balance) error
	ListBalances(ctx context.Context, employeeID string) ([]Balance, error)

	AppendJournal(ctx context.Context, entry JournalEntry) error
	ListJournal(ctx context.Context, employeeID string, limit int) ([]JournalEntry, error)
}

// Store adds transactions to Repository.
type Store interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

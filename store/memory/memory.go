// Package memory provides an in-memory leave.Store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	employees    map[string]leave.Employee
	applications map[string]leave.Application
	balances     map[leave.BalanceKey]leave.Balance
	journal      []leave.JournalEntry
	idempotency  map[string]bool
}

func New() *Memory {
	return &Memory{
		employees:    make(map[string]leave.Employee),
		applications: make(map[string]leave.Application),
		balances:     make(map[leave.BalanceKey]leave.Balance),
		idempotency:  make(map[string]bool),
	}
}

var _ leave.Store = (*Memory)(nil)

// =============================================================================
// REPOSITORY (locking wrappers)
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id), nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEmployeesLocked(), nil
}

func (m *Memory) SaveApplication(_ context.Context, app leave.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications[app.ID] = app
	return nil
}

func (m *Memory) GetApplication(_ context.Context, id string) (*leave.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getApplicationLocked(id), nil
}

func (m *Memory) ListApplications(_ context.Context, filter leave.ApplicationFilter) ([]leave.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listApplicationsLocked(filter), nil
}

func (m *Memory) GetBalance(_ context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(key), nil
}

func (m *Memory) SaveBalance(_ context.Context, b leave.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[b.Key()] = b
	return nil
}

func (m *Memory) ListBalances(_ context.Context, employeeID string) ([]leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBalancesLocked(employeeID), nil
}

// AppendJournal adds a single entry. Append-only.
func (m *Memory) AppendJournal(_ context.Context, entry leave.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendJournalLocked(entry)
}

func (m *Memory) ListJournal(_ context.Context, employeeID string, limit int) ([]leave.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listJournalLocked(employeeID, limit), nil
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (m *Memory) getEmployeeLocked(id string) *leave.Employee {
	e, ok := m.employees[id]
	if !ok {
		return nil
	}
	return &e
}

func (m *Memory) listEmployeesLocked() []leave.Employee {
	out := make([]leave.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) getApplicationLocked(id string) *leave.Application {
	app, ok := m.applications[id]
	if !ok {
		return nil
	}
	return &app
}

func (m *Memory) listApplicationsLocked(filter leave.ApplicationFilter) []leave.Application {
	var out []leave.Application
	for _, app := range m.applications {
		if filter.EmployeeID != "" && app.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if filter.Category != "" && app.Category != filter.Category {
			continue
		}
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) getBalanceLocked(key leave.BalanceKey) *leave.Balance {
	b, ok := m.balances[key]
	if !ok {
		return nil
	}
	return &b
}

func (m *Memory) listBalancesLocked(employeeID string) []leave.Balance {
	var out []leave.Balance
	for _, b := range m.balances {
		if b.EmployeeID == employeeID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func (m *Memory) appendJournalLocked(entry leave.JournalEntry) error {
	if entry.IdempotencyKey != "" && m.idempotency[entry.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.journal = append(m.journal, entry)
	if entry.IdempotencyKey != "" {
		m.idempotency[entry.IdempotencyKey] = true
	}
	return nil
}

// listJournalLocked returns newest first; ties keep reverse insertion order.
func (m *Memory) listJournalLocked(employeeID string, limit int) []leave.JournalEntry {
	var out []leave.JournalEntry
	for i := len(m.journal) - 1; i >= 0; i-- {
		if m.journal[i].EmployeeID == employeeID {
			out = append(out, m.journal[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with a snapshot that is
// restored when fn returns an error. Transactions are serialized.
func (m *Memory) WithTx(_ context.Context, fn func(leave.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// Reset drops everything.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restore(memorySnapshot{
		employees:    make(map[string]leave.Employee),
		applications: make(map[string]leave.Application),
		balances:     make(map[leave.BalanceKey]leave.Balance),
		idempotency:  make(map[string]bool),
	})
}

type memorySnapshot struct {
	employees    map[string]leave.Employee
	applications map[string]leave.Application
	balances     map[leave.BalanceKey]leave.Balance
	journal      []leave.JournalEntry
	idempotency  map[string]bool
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		employees:    make(map[string]leave.Employee, len(m.employees)),
		applications: make(map[string]leave.Application, len(m.applications)),
		balances:     make(map[leave.BalanceKey]leave.Balance, len(m.balances)),
		journal:      append([]leave.JournalEntry(nil), m.journal...),
		idempotency:  make(map[string]bool, len(m.idempotency)),
	}
	for k, v := range m.employees {
		s.employees[k] = v
	}
	for k, v := range m.applications {
		s.applications[k] = v
	}
	for k, v := range m.balances {
		s.balances[k] = v
	}
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.employees = s.employees
	m.applications = s.applications
	m.balances = s.balances
	m.journal = s.journal
	m.idempotency = s.idempotency
}

// txView is the Repository handed to WithTx callbacks. The parent lock is
// already held.
type txView struct {
	parent *Memory
}

func (tv *txView) SaveEmployee(_ context.Context, e leave.Employee) error {
	tv.parent.employees[e.ID] = e
	return nil
}

func (tv *txView) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	return tv.parent.getEmployeeLocked(id), nil
}

func (tv *txView) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	return tv.parent.listEmployeesLocked(), nil
}

func (tv *txView) SaveApplication(_ context.Context, app leave.Application) error {
	tv.parent.applications[app.ID] = app
	return nil
}

func (tv *txView) GetApplication(_ context.Context, id string) (*leave.Application, error) {
	return tv.parent.getApplicationLocked(id), nil
}

func (tv *txView) ListApplications(_ context.Context, filter leave.ApplicationFilter) ([]leave.Application, error) {
	return tv.parent.listApplicationsLocked(filter), nil
}

func (tv *txView) GetBalance(_ context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	return tv.parent.getBalanceLocked(key), nil
}

func (tv *txView) SaveBalance(_ context.Context, b leave.Balance) error {
	tv.parent.balances[b.Key()] = b
	return nil
}

func (tv *txView) ListBalances(_ context.Context, employeeID string) ([]leave.Balance, error) {
	return tv.parent.listBalancesLocked(employeeID), nil
}

func (tv *txView) AppendJournal(_ context.Context, entry leave.JournalEntry) error {
	return tv.parent.appendJournalLocked(entry)
}

func (tv *txView) ListJournal(_ context.Context, employeeID string, limit int) ([]leave.JournalEntry, error) {
	return tv.parent.listJournalLocked(employeeID, limit), nil
}

// Package memory provides an in-memory timeoff.Store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps everything in maps guarded by one mutex. WithTx holds the
// mutex for the whole callback and works on a copy, so a failing callback
// leaves no trace.
type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	interns map[string]*timeoff.Intern
	apps    map[string]*timeoff.Application
}

func New() *Store {
	return &Store{state: &state{
		interns: make(map[string]*timeoff.Intern),
		apps:    make(map[string]*timeoff.Application),
	}}
}

func (m *Store) CreateIntern(ctx context.Context, intern *timeoff.Intern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createIntern(intern)
}

func (m *Store) GetInternByHandle(ctx context.Context, handle string) (*timeoff.Intern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getIntern(handle)
}

func (m *Store) DeleteIntern(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.deleteIntern(handle)
}

func (m *Store) AdjustBalance(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.adjust(handle, c, generic.Delta{Balance: delta})
}

func (m *Store) AdjustTaken(ctx context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.adjust(handle, c, generic.Delta{Taken: delta})
}

func (m *Store) CreateApplication(ctx context.Context, app *timeoff.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.createApplication(app)
}

func (m *Store) GetApplication(ctx context.Context, id string) (*timeoff.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getApplication(id)
}

func (m *Store) SetApplicationStatus(ctx context.Context, id string, expected, next timeoff.Status, update timeoff.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.setStatus(id, expected, next, update)
}

func (m *Store) ListUpcomingApprovedByHandle(ctx context.Context, handle string, from generic.Date) ([]*timeoff.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.upcoming(handle, from), nil
}

func (m *Store) ListPendingApplications(ctx context.Context) ([]*timeoff.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.pending(), nil
}

// WithTx runs fn against a private copy and swaps it in on success.
func (m *Store) WithTx(ctx context.Context, fn func(timeoff.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&txStore{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// =============================================================================
// TRANSACTION VIEW - Lock already held by WithTx
// =============================================================================

type txStore struct {
	state *state
}

func (t *txStore) CreateIntern(_ context.Context, intern *timeoff.Intern) error {
	return t.state.createIntern(intern)
}

func (t *txStore) GetInternByHandle(_ context.Context, handle string) (*timeoff.Intern, error) {
	return t.state.getIntern(handle)
}

func (t *txStore) DeleteIntern(_ context.Context, handle string) error {
	return t.state.deleteIntern(handle)
}

func (t *txStore) AdjustBalance(_ context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	return t.state.adjust(handle, c, generic.Delta{Balance: delta})
}

func (t *txStore) AdjustTaken(_ context.Context, handle string, c timeoff.Category, delta decimal.Decimal) error {
	return t.state.adjust(handle, c, generic.Delta{Taken: delta})
}

func (t *txStore) CreateApplication(_ context.Context, app *timeoff.Application) error {
	return t.state.createApplication(app)
}

func (t *txStore) GetApplication(_ context.Context, id string) (*timeoff.Application, error) {
	return t.state.getApplication(id)
}

func (t *txStore) SetApplicationStatus(_ context.Context, id string, expected, next timeoff.Status, update timeoff.StatusUpdate) error {
	return t.state.setStatus(id, expected, next, update)
}

func (t *txStore) ListUpcomingApprovedByHandle(_ context.Context, handle string, from generic.Date) ([]*timeoff.Application, error) {
	return t.state.upcoming(handle, from), nil
}

func (t *txStore) ListPendingApplications(_ context.Context) ([]*timeoff.Application, error) {
	return t.state.pending(), nil
}

// WithTx on a transaction view joins the running transaction.
func (t *txStore) WithTx(_ context.Context, fn func(timeoff.Store) error) error {
	return fn(t)
}

// =============================================================================
// STATE - Unlocked operations shared by Store and txStore
// =============================================================================

func (s *state) clone() *state {
	out := &state{
		interns: make(map[string]*timeoff.Intern, len(s.interns)),
		apps:    make(map[string]*timeoff.Application, len(s.apps)),
	}
	for k, v := range s.interns {
		out.interns[k] = copyIntern(v)
	}
	for k, v := range s.apps {
		out.apps[k] = copyApplication(v)
	}
	return out
}

func (s *state) createIntern(intern *timeoff.Intern) error {
	if _, ok := s.interns[intern.Handle]; ok {
		return fmt.Errorf("intern %s: %w", intern.Handle, generic.ErrDuplicate)
	}
	s.interns[intern.Handle] = copyIntern(intern)
	return nil
}

func (s *state) getIntern(handle string) (*timeoff.Intern, error) {
	i, ok := s.interns[handle]
	if !ok {
		return nil, fmt.Errorf("intern %s: %w", handle, generic.ErrNotFound)
	}
	return copyIntern(i), nil
}

func (s *state) deleteIntern(handle string) error {
	if _, ok := s.interns[handle]; !ok {
		return fmt.Errorf("intern %s: %w", handle, generic.ErrNotFound)
	}
	delete(s.interns, handle)
	for id, app := range s.apps {
		if app.InternHandle == handle {
			delete(s.apps, id)
		}
	}
	return nil
}

func (s *state) adjust(handle string, c timeoff.Category, d generic.Delta) error {
	i, ok := s.interns[handle]
	if !ok {
		return fmt.Errorf("intern %s: %w", handle, generic.ErrNotFound)
	}
	i.Accounts[c] = i.Account(c).Apply(d)
	return nil
}

func (s *state) createApplication(app *timeoff.Application) error {
	if _, ok := s.apps[app.ID]; ok {
		return fmt.Errorf("application %s: %w", app.ID, generic.ErrDuplicate)
	}
	if _, ok := s.interns[app.InternHandle]; !ok {
		return fmt.Errorf("intern %s: %w", app.InternHandle, generic.ErrNotFound)
	}
	s.apps[app.ID] = copyApplication(app)
	return nil
}

func (s *state) getApplication(id string) (*timeoff.Application, error) {
	a, ok := s.apps[id]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", id, generic.ErrNotFound)
	}
	return copyApplication(a), nil
}

func (s *state) setStatus(id string, expected, next timeoff.Status, update timeoff.StatusUpdate) error {
	a, ok := s.apps[id]
	if !ok {
		return fmt.Errorf("application %s: %w", id, generic.ErrNotFound)
	}
	if a.Status != expected {
		return &generic.ConflictError{ID: id, Status: string(a.Status)}
	}
	a.Status = next
	if update.DecidedAt != nil {
		t := *update.DecidedAt
		a.DecidedAt = &t
	}
	if update.Remarks != nil {
		a.Remarks = *update.Remarks
	}
	return nil
}

func (s *state) upcoming(handle string, from generic.Date) []*timeoff.Application {
	var out []*timeoff.Application
	for _, a := range s.apps {
		if a.InternHandle == handle && a.Status.Granted() && !a.Start.Before(from) {
			out = append(out, copyApplication(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) pending() []*timeoff.Application {
	var out []*timeoff.Application
	for _, a := range s.apps {
		if a.Status == timeoff.StatusPending {
			out = append(out, copyApplication(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func copyIntern(i *timeoff.Intern) *timeoff.Intern {
	c := *i
	c.Accounts = make(map[timeoff.Category]generic.Account, len(i.Accounts))
	for k, v := range i.Accounts {
		c.Accounts[k] = v
	}
	return &c
}

func copyApplication(a *timeoff.Application) *timeoff.Application {
	c := *a
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		c.DecidedAt = &t
	}
	if a.BalanceAtSubmission != nil {
		b := *a.BalanceAtSubmission
		c.BalanceAtSubmission = &b
	}
	return &c
}

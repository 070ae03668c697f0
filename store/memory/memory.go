// Package memory provides an in-memory leave.Store (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store keeps everything in maps behind one lock. Values are cloned on the
// way in and out so callers never share memory with the store.
type Store struct {
	mu            sync.RWMutex
	requests      map[string]*storedRequest
	seq           int64
	employees     map[string]*leave.Employee
	effects       map[string][]leave.BalanceEffect // by employee
	appliedKeys   map[string]bool
	inconsistency map[string]*leave.Inconsistency
	incOrder      []string
}

type storedRequest struct {
	seq int64
	r   *leave.Request
}

var _ leave.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		requests:      make(map[string]*storedRequest),
		employees:     make(map[string]*leave.Employee),
		effects:       make(map[string][]leave.BalanceEffect),
		appliedKeys:   make(map[string]bool),
		inconsistency: make(map[string]*leave.Inconsistency),
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) CreateRequest(_ context.Context, r *leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := s.requests[r.ID]; exists {
		return generic.Invalid("id", "request %s already exists", r.ID)
	}
	r.Version = 1
	s.seq++
	s.requests[r.ID] = &storedRequest{seq: s.seq, r: r.Clone()}
	return nil
}

func (s *Store) GetRequest(_ context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.requests[id]
	if !ok {
		return nil, &generic.NotFoundError{Entity: "request", ID: id}
	}
	return sr.r.Clone(), nil
}

func (s *Store) UpdateRequest(_ context.Context, r *leave.Request, expectedState leave.State, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.requests[r.ID]
	if !ok {
		return &generic.NotFoundError{Entity: "request", ID: r.ID}
	}
	if sr.r.State != expectedState || sr.r.Version != expectedVersion {
		return generic.ErrPersistenceConflict
	}
	sr.r = r.Clone()
	return nil
}

func (s *Store) ListRequests(_ context.Context, f leave.RequestFilter) (leave.RequestPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f = f.Normalize()
	var matched []*storedRequest
	for _, sr := range s.requests {
		if f.Matches(sr.r) {
			matched = append(matched, sr)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.r.RequestedAt.Equal(b.r.RequestedAt) {
			return a.r.RequestedAt.After(b.r.RequestedAt)
		}
		return a.seq > b.seq
	})

	page := leave.RequestPage{Total: len(matched), Page: f.Page, PerPage: f.PerPage, Requests: []*leave.Request{}}
	for i := f.Offset(); i < len(matched) && i < f.Offset()+f.PerPage; i++ {
		page.Requests = append(page.Requests, matched[i].r.Clone())
	}
	return page, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) CreateEmployee(_ context.Context, e *leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.employees[e.ID]; exists {
		return generic.Invalid("id", "employee %s already exists", e.ID)
	}
	e.Version = 1
	s.employees[e.ID] = e.Clone()
	return nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[id]
	if !ok {
		return nil, &generic.NotFoundError{Entity: "employee", ID: id}
	}
	return e.Clone(), nil
}

func (s *Store) ListActiveEmployees(_ context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []leave.Employee
	for _, e := range s.employees {
		if e.Active {
			out = append(out, *e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveEmployeeProfile(_ context.Context, e *leave.Employee, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.employees[e.ID]
	if !ok {
		return &generic.NotFoundError{Entity: "employee", ID: e.ID}
	}
	if cur.Version != expectedVersion {
		return generic.ErrPersistenceConflict
	}

	next := e.Clone()
	// Ledger fields are owned by ApplyBalanceEffect and UpdateAccrual.
	next.Balance.Used = cur.Balance.Used
	next.Balance.Refunded = cur.Balance.Refunded
	next.Balance.Accrued = cur.Balance.Accrued
	next.Balance.AccruedHours = cur.Balance.AccruedHours
	next.Balance.Total = cur.Balance.Total
	next.Balance.ComputedAt = cur.Balance.ComputedAt
	next.CreatedAt = cur.CreatedAt
	next.Version = cur.Version + 1
	s.employees[e.ID] = next
	return nil
}

func (s *Store) ApplyBalanceEffect(_ context.Context, effect leave.BalanceEffect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appliedKeys[effect.Key] {
		return generic.ErrDuplicateIdempotencyKey
	}
	e, ok := s.employees[effect.EmployeeID]
	if !ok {
		return &generic.NotFoundError{Entity: "employee", ID: effect.EmployeeID}
	}

	e.Balance.Used = e.Balance.Used.Add(effect.UsedDelta)
	e.Balance.Refunded = e.Balance.Refunded.Add(effect.RefundedDelta)
	e.Version++
	s.appliedKeys[effect.Key] = true
	s.effects[effect.EmployeeID] = append(s.effects[effect.EmployeeID], effect)
	return nil
}

func (s *Store) UpdateAccrual(_ context.Context, employeeID string, u leave.AccrualUpdate, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.employees[employeeID]
	if !ok {
		return &generic.NotFoundError{Entity: "employee", ID: employeeID}
	}
	if e.Version != expectedVersion {
		return generic.ErrPersistenceConflict
	}
	at := u.ComputedAt
	e.Balance.Accrued = u.Accrued
	e.Balance.AccruedHours = u.AccruedHours
	e.Balance.Total = u.Total
	e.Balance.ComputedAt = &at
	e.Version++
	return nil
}

func (s *Store) ListBalanceEffects(_ context.Context, employeeID string) ([]leave.BalanceEffect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]leave.BalanceEffect, len(s.effects[employeeID]))
	copy(out, s.effects[employeeID])
	return out, nil
}

// =============================================================================
// INCONSISTENCIES
// =============================================================================

func (s *Store) SaveInconsistency(_ context.Context, inc *leave.Inconsistency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.inconsistency[inc.ID]; !exists {
		s.incOrder = append(s.incOrder, inc.ID)
	}
	c := *inc
	if inc.ResolvedAt != nil {
		t := *inc.ResolvedAt
		c.ResolvedAt = &t
	}
	s.inconsistency[inc.ID] = &c
	return nil
}

func (s *Store) GetInconsistency(_ context.Context, id string) (*leave.Inconsistency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inc, ok := s.inconsistency[id]
	if !ok {
		return nil, &generic.NotFoundError{Entity: "inconsistency", ID: id}
	}
	c := *inc
	return &c, nil
}

func (s *Store) ListInconsistencies(_ context.Context, openOnly bool) ([]leave.Inconsistency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []leave.Inconsistency{}
	for _, id := range s.incOrder {
		inc := s.inconsistency[id]
		if openOnly && inc.IsResolved() {
			continue
		}
		out = append(out, *inc)
	}
	return out, nil
}

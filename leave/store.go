package leave

import (
	"context"
	"time"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

// RequestStore persists requests. Implementations must make UpdateRequest a
// compare-and-swap: the write happens only if the stored state and version
// still equal the expected values, otherwise generic.ErrPersistenceConflict.
type RequestStore interface {
	// CreateRequest assigns an ID when empty and stores the request at version 1.
	CreateRequest(ctx context.Context, r *Request) error

	// GetRequest returns a *generic.NotFoundError for unknown ids.
	GetRequest(ctx context.Context, id string) (*Request, error)

	// UpdateRequest replaces the stored request. r.Version must already be
	// expectedVersion+1.
	UpdateRequest(ctx context.Context, r *Request, expectedState State, expectedVersion int64) error

	// ListRequests returns one page, newest first.
	ListRequests(ctx context.Context, f RequestFilter) (RequestPage, error)
}

// EmployeeStore persists employees and their balance ledger.
type EmployeeStore interface {
	CreateEmployee(ctx context.Context, e *Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListActiveEmployees(ctx context.Context) ([]Employee, error)

	// SaveEmployeeProfile writes profile fields, inactivity and the historical
	// balance, guarded by version. Used and refunded days are never written
	// here.
	SaveEmployeeProfile(ctx context.Context, e *Employee, expectedVersion int64) error

	// ApplyBalanceEffect atomically records the effect and adds its deltas to
	// used/refunded days. A key seen before returns
	// generic.ErrDuplicateIdempotencyKey and changes nothing.
	ApplyBalanceEffect(ctx context.Context, effect BalanceEffect) error

	// UpdateAccrual writes recomputed figures, guarded by version.
	UpdateAccrual(ctx context.Context, employeeID string, u AccrualUpdate, expectedVersion int64) error

	// ListBalanceEffects returns an employee's effects, oldest first.
	ListBalanceEffects(ctx context.Context, employeeID string) ([]BalanceEffect, error)
}

// InconsistencyStore keeps saga failures until they are reconciled.
type InconsistencyStore interface {
	SaveInconsistency(ctx context.Context, inc *Inconsistency) error
	GetInconsistency(ctx context.Context, id string) (*Inconsistency, error)
	ListInconsistencies(ctx context.Context, openOnly bool) ([]Inconsistency, error)
}

// Store is everything the Service needs.
type Store interface {
	RequestStore
	EmployeeStore
	InconsistencyStore
}

// =============================================================================
// LISTING
// =============================================================================

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

type RequestFilter struct {
	EmployeeID   string
	SupervisorID string
	State        State // empty = any
	Kind         Kind  // empty = any
	Page         int   // 1-based
	PerPage      int
}

// Normalize applies paging defaults and bounds.
func (f RequestFilter) Normalize() RequestFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f
}

func (f RequestFilter) Offset() int { return (f.Page - 1) * f.PerPage }

// Matches reports whether r passes the filter, ignoring paging.
func (f RequestFilter) Matches(r *Request) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.SupervisorID != "" && r.SupervisorID != f.SupervisorID {
		return false
	}
	if f.State != "" && r.State != f.State {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	return true
}

type RequestPage struct {
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PerPage  int        `json:"per_page"`
	Requests []*Request `json:"requests"`
}

// =============================================================================
// NOTIFIER
// =============================================================================

// Notifier receives exactly one event per persisted change. Implementations
// absorb delivery failures; they never return them to the caller.
type Notifier interface {
	NotifyRequestCreated(ctx context.Context, r *Request)
	NotifyRequestChanged(ctx context.Context, r *Request)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) NotifyRequestCreated(context.Context, *Request) {}
func (NopNotifier) NotifyRequestChanged(context.Context, *Request) {}

// SweepResult summarizes a batch recompute.
type SweepResult struct {
	Processed  int           `json:"processed"`
	Failed     int           `json:"failed"`
	Reconciled int           `json:"reconciled"`
	Duration   time.Duration `json:"duration"`
}

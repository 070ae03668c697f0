/*
Package leave implements the leave request lifecycle.

PURPOSE:
  Requests move through a small state machine driven by employees and their
  supervisors. Approvals charge the employee's balance through an idempotent
  two-step saga (apply deltas, then recompute), and every persisted change is
  pushed to a Notifier.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: vacation, permit or route pass; fixed at creation
  - State: pending, approved, rejected, cancelled, modified
  - Role/Actor: the already-authenticated identity issuing a command

STATE MACHINE:
  Pending  ──▶ Approved | Rejected | Cancelled | Modified
  Approved ──▶ Modified
  Modified ──▶ Approved | Rejected | Modified (edited again while under review)

  Rejected and Cancelled are terminal. Only Pending can be cancelled.

SEE ALSO:
  - transitions.go: The transition table
  - service.go: Lifecycle operations
  - saga.go: Apply-to-balance and reconciliation
  - store.go: Persistence contracts
*/
package leave

import "fmt"

// =============================================================================
// KIND
// =============================================================================

type Kind string

const (
	KindVacation  Kind = "vacation"
	KindPermit    Kind = "permit"
	KindRoutePass Kind = "route_pass"
)

func (k Kind) Valid() bool {
	switch k {
	case KindVacation, KindPermit, KindRoutePass:
		return true
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown request kind %q", s)
	}
	return k, nil
}

// =============================================================================
// STATE
// =============================================================================

type State string

const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateCancelled State = "cancelled"
	StateModified  State = "modified"
)

func (s State) Valid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected, StateCancelled, StateModified:
		return true
	}
	return false
}

func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown request state %q", s)
	}
	return st, nil
}

// =============================================================================
// REASONS
// =============================================================================

type PermitReason string

const (
	PermitOfficeMatters    PermitReason = "office_matters"
	PermitHealth           PermitReason = "health"
	PermitDomesticCalamity PermitReason = "domestic_calamity"
	PermitOther            PermitReason = "other"
)

func (r PermitReason) Valid() bool {
	switch r {
	case PermitOfficeMatters, PermitHealth, PermitDomesticCalamity, PermitOther:
		return true
	}
	return false
}

type RoutePassReason string

const (
	RoutePassPersonalMatter RoutePassReason = "personal_matter"
	RoutePassOther          RoutePassReason = "other"
)

func (r RoutePassReason) Valid() bool {
	return r == RoutePassPersonalMatter || r == RoutePassOther
}

// =============================================================================
// ACTOR
// =============================================================================

type Role string

const (
	RoleEmployee   Role = "employee"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleEmployee || r == RoleSupervisor || r == RoleAdmin
}

// Actor is the identity issuing a command, resolved by the auth boundary.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor is used for scheduled work.
var SystemActor = Actor{ID: "system", Role: RoleAdmin}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

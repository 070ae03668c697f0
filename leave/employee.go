package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// EMPLOYEE - Balance owner
// =============================================================================

type Employee struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	SupervisorID string           `json:"supervisor_id,omitempty"`
	Role         Role             `json:"role"`
	Regime       accrual.Regime   `json:"regime"`
	HireDate     time.Time        `json:"hire_date"`
	Active       bool             `json:"active"`
	Inactivity   accrual.Timeline `json:"inactivity"`
	Balance      Balance          `json:"balance"`
	Version      int64            `json:"version"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Balance holds the stored components and the last computed figures.
// Total is never authoritative; it is recomputed from the components.
type Balance struct {
	Historical   decimal.Decimal `json:"historical"`
	Accrued      decimal.Decimal `json:"accrued"`
	AccruedHours decimal.Decimal `json:"accrued_hours"`
	Used         decimal.Decimal `json:"used"`
	Refunded     decimal.Decimal `json:"refunded"`
	Total        decimal.Decimal `json:"total"`
	ComputedAt   *time.Time      `json:"computed_at,omitempty"`
}

func (e *Employee) Clone() *Employee {
	c := *e
	c.Inactivity = make(accrual.Timeline, len(e.Inactivity))
	for i, p := range e.Inactivity {
		c.Inactivity[i] = p
		if p.End != nil {
			end := *p.End
			c.Inactivity[i].End = &end
		}
	}
	if e.Balance.ComputedAt != nil {
		t := *e.Balance.ComputedAt
		c.Balance.ComputedAt = &t
	}
	return &c
}

func (e *Employee) Validate() error {
	if e.ID == "" {
		return generic.Invalid("id", "is required")
	}
	if !e.Regime.Valid() {
		return generic.Invalid("regime", "unknown regime %q", e.Regime)
	}
	if e.HireDate.IsZero() {
		return generic.Invalid("hire_date", "is required")
	}
	if e.Role == "" {
		e.Role = RoleEmployee
	}
	if !e.Role.Valid() {
		return generic.Invalid("role", "unknown role %q", e.Role)
	}
	return nil
}

// Profile is the accrual view of the employee.
func (e *Employee) Profile() accrual.Profile {
	return accrual.Profile{HireDate: e.HireDate, Regime: e.Regime, Inactivity: e.Inactivity}
}

// Ledger is the stored balance components.
func (e *Employee) Ledger() accrual.Ledger {
	return accrual.Ledger{Historical: e.Balance.Historical, Used: e.Balance.Used, Refunded: e.Balance.Refunded}
}

// AccrualUpdate is the field-level write of a recompute.
type AccrualUpdate struct {
	Accrued      decimal.Decimal
	AccruedHours decimal.Decimal
	Total        decimal.Decimal
	ComputedAt   time.Time
}

// =============================================================================
// BALANCE EFFECT - Idempotent ledger entry produced by the saga
// =============================================================================

type BalanceEffect struct {
	Key           string          `json:"key"`
	RequestID     string          `json:"request_id"`
	EmployeeID    string          `json:"employee_id"`
	Transition    string          `json:"transition"`
	UsedDelta     decimal.Decimal `json:"used_delta"`
	RefundedDelta decimal.Decimal `json:"refunded_delta"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EffectKey identifies one transition of one request version.
func EffectKey(requestID, transition string, version int64) string {
	return fmt.Sprintf("%s:%s:v%d", requestID, transition, version)
}

func (e BalanceEffect) IsNoop() bool {
	return e.UsedDelta.IsZero() && e.RefundedDelta.IsZero()
}

// =============================================================================
// INCONSISTENCY - A decision persisted without its balance update
// =============================================================================

type SagaStage string

const (
	StageApply     SagaStage = "apply"
	StageRecompute SagaStage = "recompute"
)

type Inconsistency struct {
	ID         string        `json:"id"`
	Effect     BalanceEffect `json:"effect"`
	Stage      SagaStage     `json:"stage"`
	Error      string        `json:"error"`
	Attempts   int           `json:"attempts"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

func (i *Inconsistency) IsResolved() bool { return i.ResolvedAt != nil }

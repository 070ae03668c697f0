/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON bodies accepted and returned by the HTTP layer. Requests come back
  through leave.Request's own JSON form; the types here cover inputs and
  the few responses that are not domain values.

NAMING CONVENTION:
  - *Body: request body types from clients
  - *DTO: response types returned to clients

VALIDATION:
  Handlers only parse. Domain rules (ranges, states, amounts) are enforced by
  leave.Service so every transport gets the same answers.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/request.go: Request JSON shape
*/
package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST BODIES
// =============================================================================

// CreateRequestBody files a new request. Detail is decoded by kind.
type CreateRequestBody struct {
	EmployeeID   string          `json:"employee_id"`
	SupervisorID string          `json:"supervisor_id"`
	Kind         string          `json:"kind"`
	Period       string          `json:"period"`
	Detail       json.RawMessage `json:"detail"`
	Notes        string          `json:"notes"`
}

func (b CreateRequestBody) toNewRequest() (leave.NewRequest, error) {
	kind, err := leave.ParseKind(b.Kind)
	if err != nil {
		return leave.NewRequest{}, generic.Invalid("kind", "%v", err)
	}
	detail, err := leave.DecodeDetail(kind, b.Detail)
	if err != nil {
		if errors.Is(err, generic.ErrValidation) {
			return leave.NewRequest{}, err
		}
		return leave.NewRequest{}, generic.Invalid("detail", "%v", err)
	}
	return leave.NewRequest{
		EmployeeID:   b.EmployeeID,
		SupervisorID: b.SupervisorID,
		Kind:         kind,
		Period:       b.Period,
		Detail:       detail,
		Notes:        b.Notes,
	}, nil
}

// DecisionBody carries reviewer notes for approve, reject and cancel.
type DecisionBody struct {
	Notes string `json:"notes"`
}

// PatchBody is a partial update. Absent fields are untouched.
type PatchBody struct {
	FromDay    *string `json:"from_day"`
	ToDay      *string `json:"to_day"`
	ReturnDate *string `json:"return_date"`

	FromTime *time.Time `json:"from_time"`
	ToTime   *time.Time `json:"to_time"`

	RefundAmount    *decimal.Decimal `json:"refund_amount"`
	DiscountEnabled *bool            `json:"discount_enabled"`
	DiscountDays    *decimal.Decimal `json:"discount_days"`

	Notes *string `json:"notes"`
}

func (b PatchBody) toPatch() (leave.Patch, error) {
	p := leave.Patch{
		FromTime:        b.FromTime,
		ToTime:          b.ToTime,
		RefundAmount:    b.RefundAmount,
		DiscountEnabled: b.DiscountEnabled,
		DiscountDays:    b.DiscountDays,
		Notes:           b.Notes,
	}
	dates := []struct {
		field string
		raw   *string
		dst   **time.Time
	}{
		{"from_day", b.FromDay, &p.FromDay},
		{"to_day", b.ToDay, &p.ToDay},
		{"return_date", b.ReturnDate, &p.ReturnDate},
	}
	for _, d := range dates {
		if d.raw == nil {
			continue
		}
		t, err := leave.ParseDate(*d.raw)
		if err != nil {
			return leave.Patch{}, generic.Invalid(d.field, "%v", err)
		}
		*d.dst = &t
	}
	return p, nil
}

type RefundBody struct {
	Amount decimal.Decimal `json:"amount"`
}

type DiscountBody struct {
	Enabled bool             `json:"enabled"`
	Days    *decimal.Decimal `json:"days"`
}

// CreateEmployeeBody registers a balance owner.
type CreateEmployeeBody struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	SupervisorID string          `json:"supervisor_id"`
	Role         string          `json:"role"`
	Regime       string          `json:"regime"`
	HireDate     string          `json:"hire_date"`
	Historical   decimal.Decimal `json:"historical"`
}

func (b CreateEmployeeBody) toEmployee() (*leave.Employee, error) {
	regime, err := accrual.ParseRegime(b.Regime)
	if err != nil {
		return nil, generic.Invalid("regime", "%v", err)
	}
	hire, err := leave.ParseDate(b.HireDate)
	if err != nil {
		return nil, generic.Invalid("hire_date", "%v", err)
	}
	return &leave.Employee{
		ID:           b.ID,
		Name:         b.Name,
		Email:        b.Email,
		SupervisorID: b.SupervisorID,
		Role:         leave.Role(b.Role),
		Regime:       regime,
		HireDate:     hire,
		Active:       true,
		Balance:      leave.Balance{Historical: b.Historical},
	}, nil
}

// StatusBody activates or deactivates an employee.
type StatusBody struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

type HistoricalBody struct {
	Historical decimal.Decimal `json:"historical"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// BalanceDTO is a computed balance as of a moment.
type BalanceDTO struct {
	EmployeeID     string          `json:"employee_id"`
	AsOf           time.Time       `json:"as_of"`
	Period         PeriodDTO       `json:"period"`
	SeniorityDays  int             `json:"seniority_days"`
	SeniorityYears decimal.Decimal `json:"seniority_years"`
	MonthsElapsed  int             `json:"months_elapsed"`
	AnnualDays     decimal.Decimal `json:"annual_days"`
	Accrued        decimal.Decimal `json:"accrued"`
	AccruedHours   decimal.Decimal `json:"accrued_hours"`
	Historical     decimal.Decimal `json:"historical"`
	Used           decimal.Decimal `json:"used"`
	Refunded       decimal.Decimal `json:"refunded"`
	Total          decimal.Decimal `json:"total"`
}

type PeriodDTO struct {
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func toBalanceDTO(employeeID string, s accrual.Snapshot) BalanceDTO {
	return BalanceDTO{
		EmployeeID: employeeID,
		AsOf:       s.AsOf,
		Period: PeriodDTO{
			Label: s.Period.Label(),
			Start: s.Period.Start.Format("2006-01-02"),
			End:   s.Period.End.Format("2006-01-02"),
		},
		SeniorityDays:  s.SeniorityDays,
		SeniorityYears: s.SeniorityYears,
		MonthsElapsed:  s.MonthsElapsed,
		AnnualDays:     s.AnnualDays,
		Accrued:        s.Accrued,
		AccruedHours:   s.AccruedHours,
		Historical:     s.Historical,
		Used:           s.Used,
		Refunded:       s.Refunded,
		Total:          s.Total,
	}
}

// ReconcileOpenDTO reports a bulk retry.
type ReconcileOpenDTO struct {
	Reconciled int `json:"reconciled"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

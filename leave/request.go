package leave

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// REQUEST - One leave instance
// =============================================================================

type Request struct {
	ID           string
	EmployeeID   string
	SupervisorID string
	Kind         Kind
	State        State
	Period       string
	Detail       Detail

	RefundAmount decimal.Decimal

	// Audit
	RequestedAt time.Time
	DecidedAt   *time.Time
	DecidedBy   string
	ModifiedAt  *time.Time
	ModifiedBy  string
	Notes       string

	// Version increments on every write and guards conditional updates.
	Version int64
	// ChargedDays is what this request currently has charged to the
	// employee's used days.
	ChargedDays decimal.Decimal
	// RefundCredited is what this request currently has credited to the
	// employee's refunded days.
	RefundCredited decimal.Decimal
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	c := *r
	if r.Detail != nil {
		c.Detail = r.Detail.Clone()
	}
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		c.DecidedAt = &t
	}
	if r.ModifiedAt != nil {
		t := *r.ModifiedAt
		c.ModifiedAt = &t
	}
	return &c
}

// Validate checks the request's own invariants.
func (r *Request) Validate() error {
	if r.EmployeeID == "" {
		return generic.Invalid("employee_id", "is required")
	}
	if !r.Kind.Valid() {
		return generic.Invalid("kind", "unknown request kind %q", r.Kind)
	}
	if r.Detail == nil {
		return generic.Invalid("detail", "is required")
	}
	if r.Detail.Kind() != r.Kind {
		return generic.Invalid("detail", "%s detail does not match kind %s", r.Detail.Kind(), r.Kind)
	}
	if r.RefundAmount.IsNegative() {
		return generic.Invalid("refund_amount", "must not be negative")
	}
	return r.Detail.Validate()
}

// normalize enforces the invariants every write must hold.
func (r *Request) normalize() {
	r.RefundAmount = generic.ClampNonNegative(r.RefundAmount)
	if p, ok := r.Detail.(*PermitDetail); ok && !p.DiscountEnabled {
		p.DiscountDays = decimal.Zero
	}
}

// ElapsedDays converts the detail's elapsed hours to days.
func (r *Request) ElapsedDays() decimal.Decimal {
	if r.Detail == nil {
		return decimal.Zero
	}
	return r.Detail.ElapsedHours().Div(generic.HoursPerDay)
}

// ChargeableDays is what an approval of this request charges to used days:
// vacations and route passes always, permits only with the discount enabled.
func (r *Request) ChargeableDays() decimal.Decimal {
	switch d := r.Detail.(type) {
	case *VacationDetail, *RoutePassDetail:
		return r.ElapsedDays()
	case *PermitDetail:
		if d.DiscountEnabled {
			return r.ElapsedDays()
		}
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

// =============================================================================
// JSON
// =============================================================================

type requestJSON struct {
	ID           string          `json:"id"`
	EmployeeID   string          `json:"employee_id"`
	SupervisorID string          `json:"supervisor_id,omitempty"`
	Kind         Kind            `json:"kind"`
	State        State           `json:"state"`
	Period       string          `json:"period,omitempty"`
	Detail       json.RawMessage `json:"detail"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	RequestedAt  time.Time       `json:"requested_at"`
	DecidedAt    *time.Time      `json:"decided_at,omitempty"`
	DecidedBy    string          `json:"decided_by,omitempty"`
	ModifiedAt   *time.Time      `json:"modified_at,omitempty"`
	ModifiedBy   string          `json:"modified_by,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Version      int64           `json:"version"`
	ChargedDays  decimal.Decimal `json:"charged_days"`
	Credited     decimal.Decimal `json:"refund_credited"`
}

func (r *Request) MarshalJSON() ([]byte, error) {
	detail := json.RawMessage("null")
	if r.Detail != nil {
		b, err := json.Marshal(r.Detail)
		if err != nil {
			return nil, err
		}
		detail = b
	}
	return json.Marshal(requestJSON{
		ID:           r.ID,
		EmployeeID:   r.EmployeeID,
		SupervisorID: r.SupervisorID,
		Kind:         r.Kind,
		State:        r.State,
		Period:       r.Period,
		Detail:       detail,
		RefundAmount: r.RefundAmount,
		RequestedAt:  r.RequestedAt,
		DecidedAt:    r.DecidedAt,
		DecidedBy:    r.DecidedBy,
		ModifiedAt:   r.ModifiedAt,
		ModifiedBy:   r.ModifiedBy,
		Notes:        r.Notes,
		Version:      r.Version,
		ChargedDays:  r.ChargedDays,
		Credited:     r.RefundCredited,
	})
}

func (r *Request) UnmarshalJSON(b []byte) error {
	var v requestJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	detail, err := DecodeDetail(v.Kind, v.Detail)
	if err != nil {
		return err
	}
	*r = Request{
		ID:             v.ID,
		EmployeeID:     v.EmployeeID,
		SupervisorID:   v.SupervisorID,
		Kind:           v.Kind,
		State:          v.State,
		Period:         v.Period,
		Detail:         detail,
		RefundAmount:   v.RefundAmount,
		RequestedAt:    v.RequestedAt,
		DecidedAt:      v.DecidedAt,
		DecidedBy:      v.DecidedBy,
		ModifiedAt:     v.ModifiedAt,
		ModifiedBy:     v.ModifiedBy,
		Notes:          v.Notes,
		Version:        v.Version,
		ChargedDays:    v.ChargedDays,
		RefundCredited: v.Credited,
	}
	return nil
}

// =============================================================================
// COMMAND INPUTS
// =============================================================================

// NewRequest is the input to Create.
type NewRequest struct {
	EmployeeID   string
	SupervisorID string
	Kind         Kind
	Period       string
	Detail       Detail
	Notes        string
}

// Patch is a partial update applied by Modify. Nil fields are untouched.
type Patch struct {
	// Vacation
	FromDay    *time.Time
	ToDay      *time.Time
	ReturnDate *time.Time

	// Permit and route pass
	FromTime *time.Time
	ToTime   *time.Time

	RefundAmount *decimal.Decimal

	// Permit only
	DiscountEnabled *bool
	DiscountDays    *decimal.Decimal

	Notes *string
}

func (p Patch) IsEmpty() bool {
	return p.FromDay == nil && p.ToDay == nil && p.ReturnDate == nil &&
		p.FromTime == nil && p.ToTime == nil && p.RefundAmount == nil &&
		p.DiscountEnabled == nil && p.DiscountDays == nil && p.Notes == nil
}

// apply writes the patch into r, refusing fields that do not fit the kind.
func (p Patch) apply(r *Request) error {
	switch d := r.Detail.(type) {
	case *VacationDetail:
		if p.FromTime != nil || p.ToTime != nil {
			return &generic.OperationError{Kind: string(r.Kind), Operation: "time range update"}
		}
		if p.DiscountEnabled != nil || p.DiscountDays != nil {
			return &generic.OperationError{Kind: string(r.Kind), Operation: OpSetDiscount}
		}
		setTime(&d.FromDay, p.FromDay)
		setTime(&d.ToDay, p.ToDay)
		setTime(&d.ReturnDate, p.ReturnDate)
	case *PermitDetail:
		if p.FromDay != nil || p.ToDay != nil || p.ReturnDate != nil {
			return &generic.OperationError{Kind: string(r.Kind), Operation: "day range update"}
		}
		setTime(&d.FromTime, p.FromTime)
		setTime(&d.ToTime, p.ToTime)
		if p.DiscountEnabled != nil {
			d.DiscountEnabled = *p.DiscountEnabled
		}
		if p.DiscountDays != nil {
			d.DiscountDays = *p.DiscountDays
		}
	case *RoutePassDetail:
		if p.FromDay != nil || p.ToDay != nil || p.ReturnDate != nil {
			return &generic.OperationError{Kind: string(r.Kind), Operation: "day range update"}
		}
		if p.DiscountEnabled != nil || p.DiscountDays != nil {
			return &generic.OperationError{Kind: string(r.Kind), Operation: OpSetDiscount}
		}
		setTime(&d.FromTime, p.FromTime)
		setTime(&d.ToTime, p.ToTime)
	default:
		return generic.Invalid("detail", "unsupported detail %T", r.Detail)
	}

	if p.RefundAmount != nil {
		if p.RefundAmount.IsNegative() {
			return generic.Invalid("refund_amount", "must not be negative")
		}
		r.RefundAmount = *p.RefundAmount
	}
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
	return nil
}

func setTime(dst *time.Time, v *time.Time) {
	if v != nil {
		*dst = *v
	}
}

package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST DOCUMENT
// =============================================================================

type requestDoc struct {
	ID             string          `bson:"_id"`
	EmployeeID     string          `bson:"employee_id"`
	SupervisorID   string          `bson:"supervisor_id,omitempty"`
	Kind           leave.Kind      `bson:"kind"`
	State          leave.State     `bson:"state"`
	Period         string          `bson:"period,omitempty"`
	Detail         detailDoc       `bson:"detail"`
	RefundAmount   bson.Decimal128 `bson:"refund_amount"`
	RequestedAt    time.Time       `bson:"requested_at"`
	DecidedAt      *time.Time      `bson:"decided_at,omitempty"`
	DecidedBy      string          `bson:"decided_by,omitempty"`
	ModifiedAt     *time.Time      `bson:"modified_at,omitempty"`
	ModifiedBy     string          `bson:"modified_by,omitempty"`
	Notes          string          `bson:"notes,omitempty"`
	Version        int64           `bson:"version"`
	ChargedDays    bson.Decimal128 `bson:"charged_days"`
	RefundCredited bson.Decimal128 `bson:"refund_credited"`
}

// detailDoc flattens every detail variant; the request kind says which
// fields are meaningful.
type detailDoc struct {
	FromDay         *time.Time       `bson:"from_day,omitempty"`
	ToDay           *time.Time       `bson:"to_day,omitempty"`
	ReturnDate      *time.Time       `bson:"return_date,omitempty"`
	FromTime        *time.Time       `bson:"from_time,omitempty"`
	ToTime          *time.Time       `bson:"to_time,omitempty"`
	Reason          string           `bson:"reason,omitempty"`
	Notes           string           `bson:"notes,omitempty"`
	AttachmentRef   string           `bson:"attachment_ref,omitempty"`
	DiscountEnabled bool             `bson:"discount_enabled,omitempty"`
	DiscountDays    *bson.Decimal128 `bson:"discount_days,omitempty"`
}

func toRequestDoc(r *leave.Request) requestDoc {
	return requestDoc{
		ID:             r.ID,
		EmployeeID:     r.EmployeeID,
		SupervisorID:   r.SupervisorID,
		Kind:           r.Kind,
		State:          r.State,
		Period:         r.Period,
		Detail:         toDetailDoc(r.Detail),
		RefundAmount:   toDecimal128(r.RefundAmount),
		RequestedAt:    r.RequestedAt,
		DecidedAt:      r.DecidedAt,
		DecidedBy:      r.DecidedBy,
		ModifiedAt:     r.ModifiedAt,
		ModifiedBy:     r.ModifiedBy,
		Notes:          r.Notes,
		Version:        r.Version,
		ChargedDays:    toDecimal128(r.ChargedDays),
		RefundCredited: toDecimal128(r.RefundCredited),
	}
}

func toDetailDoc(d leave.Detail) detailDoc {
	switch v := d.(type) {
	case *leave.VacationDetail:
		return detailDoc{FromDay: timePtr(v.FromDay), ToDay: timePtr(v.ToDay), ReturnDate: timePtr(v.ReturnDate)}
	case *leave.PermitDetail:
		days := toDecimal128(v.DiscountDays)
		return detailDoc{
			FromTime:        timePtr(v.FromTime),
			ToTime:          timePtr(v.ToTime),
			Reason:          string(v.Reason),
			Notes:           v.Notes,
			AttachmentRef:   v.AttachmentRef,
			DiscountEnabled: v.DiscountEnabled,
			DiscountDays:    &days,
		}
	case *leave.RoutePassDetail:
		return detailDoc{FromTime: timePtr(v.FromTime), ToTime: timePtr(v.ToTime), Reason: string(v.Reason), Notes: v.Notes}
	default:
		return detailDoc{}
	}
}

func (d requestDoc) toRequest() (*leave.Request, error) {
	r := &leave.Request{
		ID:             d.ID,
		EmployeeID:     d.EmployeeID,
		SupervisorID:   d.SupervisorID,
		Kind:           d.Kind,
		State:          d.State,
		Period:         d.Period,
		RefundAmount:   fromDecimal128(d.RefundAmount),
		RequestedAt:    d.RequestedAt,
		DecidedAt:      d.DecidedAt,
		DecidedBy:      d.DecidedBy,
		ModifiedAt:     d.ModifiedAt,
		ModifiedBy:     d.ModifiedBy,
		Notes:          d.Notes,
		Version:        d.Version,
		ChargedDays:    fromDecimal128(d.ChargedDays),
		RefundCredited: fromDecimal128(d.RefundCredited),
	}

	dd := d.Detail
	switch d.Kind {
	case leave.KindVacation:
		r.Detail = &leave.VacationDetail{FromDay: timeVal(dd.FromDay), ToDay: timeVal(dd.ToDay), ReturnDate: timeVal(dd.ReturnDate)}
	case leave.KindPermit:
		p := &leave.PermitDetail{
			FromTime:        timeVal(dd.FromTime),
			ToTime:          timeVal(dd.ToTime),
			Reason:          leave.PermitReason(dd.Reason),
			Notes:           dd.Notes,
			AttachmentRef:   dd.AttachmentRef,
			DiscountEnabled: dd.DiscountEnabled,
		}
		if dd.DiscountDays != nil {
			p.DiscountDays = fromDecimal128(*dd.DiscountDays)
		}
		r.Detail = p
	case leave.KindRoutePass:
		r.Detail = &leave.RoutePassDetail{
			FromTime: timeVal(dd.FromTime),
			ToTime:   timeVal(dd.ToTime),
			Reason:   leave.RoutePassReason(dd.Reason),
			Notes:    dd.Notes,
		}
	default:
		return nil, fmt.Errorf("request %s: unknown kind %q", d.ID, d.Kind)
	}
	return r, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// =============================================================================
// EMPLOYEE DOCUMENT
// =============================================================================

type employeeDoc struct {
	ID           string           `bson:"_id"`
	Name         string           `bson:"name"`
	Email        string           `bson:"email,omitempty"`
	SupervisorID string           `bson:"supervisor_id,omitempty"`
	Role         leave.Role       `bson:"role"`
	Regime       accrual.Regime   `bson:"regime"`
	HireDate     time.Time        `bson:"hire_date"`
	Active       bool             `bson:"active"`
	Inactivity   accrual.Timeline `bson:"inactivity"`
	Balance      balanceDoc       `bson:"balance"`
	Version      int64            `bson:"version"`
	CreatedAt    time.Time        `bson:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at"`
}

type balanceDoc struct {
	Historical   bson.Decimal128 `bson:"historical"`
	Accrued      bson.Decimal128 `bson:"accrued"`
	AccruedHours bson.Decimal128 `bson:"accrued_hours"`
	Used         bson.Decimal128 `bson:"used"`
	Refunded     bson.Decimal128 `bson:"refunded"`
	Total        bson.Decimal128 `bson:"total"`
	ComputedAt   *time.Time      `bson:"computed_at,omitempty"`
}

func toEmployeeDoc(e *leave.Employee) employeeDoc {
	inactivity := e.Inactivity
	if inactivity == nil {
		inactivity = accrual.Timeline{}
	}
	b := e.Balance
	return employeeDoc{
		ID:           e.ID,
		Name:         e.Name,
		Email:        e.Email,
		SupervisorID: e.SupervisorID,
		Role:         e.Role,
		Regime:       e.Regime,
		HireDate:     e.HireDate,
		Active:       e.Active,
		Inactivity:   inactivity,
		Balance: balanceDoc{
			Historical:   toDecimal128(b.Historical),
			Accrued:      toDecimal128(b.Accrued),
			AccruedHours: toDecimal128(b.AccruedHours),
			Used:         toDecimal128(b.Used),
			Refunded:     toDecimal128(b.Refunded),
			Total:        toDecimal128(b.Total),
			ComputedAt:   b.ComputedAt,
		},
		Version:   e.Version,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func (d employeeDoc) toEmployee() *leave.Employee {
	inactivity := make(accrual.Timeline, len(d.Inactivity))
	for i, p := range d.Inactivity {
		p.Start = p.Start.UTC()
		if p.End != nil {
			end := p.End.UTC()
			p.End = &end
		}
		inactivity[i] = p
	}
	return &leave.Employee{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		SupervisorID: d.SupervisorID,
		Role:         d.Role,
		Regime:       d.Regime,
		HireDate:     d.HireDate.UTC(),
		Active:       d.Active,
		Inactivity:   inactivity,
		Balance: leave.Balance{
			Historical:   fromDecimal128(d.Balance.Historical),
			Accrued:      fromDecimal128(d.Balance.Accrued),
			AccruedHours: fromDecimal128(d.Balance.AccruedHours),
			Used:         fromDecimal128(d.Balance.Used),
			Refunded:     fromDecimal128(d.Balance.Refunded),
			Total:        fromDecimal128(d.Balance.Total),
			ComputedAt:   d.Balance.ComputedAt,
		},
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// =============================================================================
// EFFECT AND INCONSISTENCY DOCUMENTS
// =============================================================================

type effectDoc struct {
	Key           string          `bson:"_id"`
	RequestID     string          `bson:"request_id"`
	EmployeeID    string          `bson:"employee_id"`
	Transition    string          `bson:"transition"`
	UsedDelta     bson.Decimal128 `bson:"used_delta"`
	RefundedDelta bson.Decimal128 `bson:"refunded_delta"`
	CreatedAt     time.Time       `bson:"created_at"`
}

func toEffectDoc(e leave.BalanceEffect) effectDoc {
	return effectDoc{
		Key:           e.Key,
		RequestID:     e.RequestID,
		EmployeeID:    e.EmployeeID,
		Transition:    e.Transition,
		UsedDelta:     toDecimal128(e.UsedDelta),
		RefundedDelta: toDecimal128(e.RefundedDelta),
		CreatedAt:     e.CreatedAt,
	}
}

func (d effectDoc) toEffect() leave.BalanceEffect {
	return leave.BalanceEffect{
		Key:           d.Key,
		RequestID:     d.RequestID,
		EmployeeID:    d.EmployeeID,
		Transition:    d.Transition,
		UsedDelta:     fromDecimal128(d.UsedDelta),
		RefundedDelta: fromDecimal128(d.RefundedDelta),
		CreatedAt:     d.CreatedAt,
	}
}

type inconsistencyDoc struct {
	ID         string          `bson:"_id"`
	Effect     effectDoc       `bson:"effect"`
	Stage      leave.SagaStage `bson:"stage"`
	Error      string          `bson:"error"`
	Attempts   int             `bson:"attempts"`
	CreatedAt  time.Time       `bson:"created_at"`
	UpdatedAt  time.Time       `bson:"updated_at"`
	ResolvedAt *time.Time      `bson:"resolved_at"`
}

func toInconsistencyDoc(inc *leave.Inconsistency) inconsistencyDoc {
	return inconsistencyDoc{
		ID:         inc.ID,
		Effect:     toEffectDoc(inc.Effect),
		Stage:      inc.Stage,
		Error:      inc.Error,
		Attempts:   inc.Attempts,
		CreatedAt:  inc.CreatedAt,
		UpdatedAt:  inc.UpdatedAt,
		ResolvedAt: inc.ResolvedAt,
	}
}

func (d inconsistencyDoc) toInconsistency() leave.Inconsistency {
	return leave.Inconsistency{
		ID:         d.ID,
		Effect:     d.Effect.toEffect(),
		Stage:      d.Stage,
		Error:      d.Error,
		Attempts:   d.Attempts,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		ResolvedAt: d.ResolvedAt,
	}
}

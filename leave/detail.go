package leave

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// DETAIL - Kind-specific payload (closed set)
// =============================================================================

// Detail is implemented only by *VacationDetail, *PermitDetail and
// *RoutePassDetail. Every site that reads a detail switches on the concrete
// type and treats anything else as a programming error.
type Detail interface {
	Kind() Kind
	Validate() error
	// ElapsedHours is the time the request takes off work.
	ElapsedHours() decimal.Decimal
	Clone() Detail
	isDetail()
}

const dateLayout = "2006-01-02"

// VacationDetail covers whole days, both ends inclusive.
type VacationDetail struct {
	FromDay    time.Time
	ToDay      time.Time
	ReturnDate time.Time
}

func (*VacationDetail) Kind() Kind { return KindVacation }
func (*VacationDetail) isDetail()  {}

func (d *VacationDetail) Clone() Detail { c := *d; return &c }

func (d *VacationDetail) Validate() error {
	if d.FromDay.IsZero() || d.ToDay.IsZero() {
		return generic.Invalid("detail", "from_day and to_day are required")
	}
	if generic.DaysBetween(d.FromDay, d.ToDay) < 0 {
		return generic.Invalid("detail.to_day", "must not be before from_day")
	}
	if d.ReturnDate.IsZero() {
		return generic.Invalid("detail.return_date", "is required")
	}
	if generic.DaysBetween(d.ToDay, d.ReturnDate) < 0 {
		return generic.Invalid("detail.return_date", "must not be before to_day")
	}
	return nil
}

// ElapsedHours counts inclusive calendar days at 8 hours each.
func (d *VacationDetail) ElapsedHours() decimal.Decimal {
	days := generic.DaysBetween(d.FromDay, d.ToDay) + 1
	if days < 0 {
		days = 0
	}
	return decimal.NewFromInt(int64(days)).Mul(generic.HoursPerDay)
}

// PermitDetail covers a time range. It only consumes vacation balance when
// the discount is enabled.
type PermitDetail struct {
	FromTime        time.Time
	ToTime          time.Time
	Reason          PermitReason
	Notes           string
	AttachmentRef   string
	DiscountEnabled bool
	DiscountDays    decimal.Decimal
}

func (*PermitDetail) Kind() Kind { return KindPermit }
func (*PermitDetail) isDetail()  {}

func (d *PermitDetail) Clone() Detail { c := *d; return &c }

func (d *PermitDetail) Validate() error {
	if err := validateRange(d.FromTime, d.ToTime); err != nil {
		return err
	}
	if !d.Reason.Valid() {
		return generic.Invalid("detail.reason", "unknown permit reason %q", d.Reason)
	}
	if d.DiscountDays.IsNegative() {
		return generic.Invalid("detail.discount_days", "must not be negative")
	}
	if !d.DiscountEnabled && !d.DiscountDays.IsZero() {
		return generic.Invalid("detail.discount_days", "only allowed when the discount is enabled")
	}
	return nil
}

func (d *PermitDetail) ElapsedHours() decimal.Decimal { return hoursOf(d.FromTime, d.ToTime) }

// RoutePassDetail covers a time range away on personal errands.
type RoutePassDetail struct {
	FromTime time.Time
	ToTime   time.Time
	Reason   RoutePassReason
	Notes    string
}

func (*RoutePassDetail) Kind() Kind { return KindRoutePass }
func (*RoutePassDetail) isDetail()  {}

func (d *RoutePassDetail) Clone() Detail { c := *d; return &c }

func (d *RoutePassDetail) Validate() error {
	if err := validateRange(d.FromTime, d.ToTime); err != nil {
		return err
	}
	if !d.Reason.Valid() {
		return generic.Invalid("detail.reason", "unknown route pass reason %q", d.Reason)
	}
	return nil
}

func (d *RoutePassDetail) ElapsedHours() decimal.Decimal { return hoursOf(d.FromTime, d.ToTime) }

func validateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return generic.Invalid("detail", "from_time and to_time are required")
	}
	if to.Before(from) {
		return generic.Invalid("detail.to_time", "must not be before from_time")
	}
	return nil
}

func hoursOf(from, to time.Time) decimal.Decimal {
	if to.Before(from) {
		return decimal.Zero
	}
	return generic.HoursBetween(from, to)
}

// =============================================================================
// JSON
// =============================================================================

type vacationJSON struct {
	FromDay    string `json:"from_day"`
	ToDay      string `json:"to_day"`
	ReturnDate string `json:"return_date"`
}

func (d *VacationDetail) MarshalJSON() ([]byte, error) {
	return json.Marshal(vacationJSON{
		FromDay:    formatDate(d.FromDay),
		ToDay:      formatDate(d.ToDay),
		ReturnDate: formatDate(d.ReturnDate),
	})
}

func (d *VacationDetail) UnmarshalJSON(b []byte) error {
	var v vacationJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	var err error
	if d.FromDay, err = ParseDate(v.FromDay); err != nil {
		return generic.Invalid("detail.from_day", "%v", err)
	}
	if d.ToDay, err = ParseDate(v.ToDay); err != nil {
		return generic.Invalid("detail.to_day", "%v", err)
	}
	if d.ReturnDate, err = ParseDate(v.ReturnDate); err != nil {
		return generic.Invalid("detail.return_date", "%v", err)
	}
	return nil
}

type permitJSON struct {
	FromTime        time.Time       `json:"from_time"`
	ToTime          time.Time       `json:"to_time"`
	Reason          PermitReason    `json:"reason"`
	Notes           string          `json:"notes,omitempty"`
	AttachmentRef   string          `json:"attachment_ref,omitempty"`
	DiscountEnabled bool            `json:"discount_enabled"`
	DiscountDays    decimal.Decimal `json:"discount_days"`
}

func (d *PermitDetail) MarshalJSON() ([]byte, error) {
	return json.Marshal(permitJSON(*d))
}

func (d *PermitDetail) UnmarshalJSON(b []byte) error {
	var v permitJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = PermitDetail(v)
	return nil
}

type routePassJSON struct {
	FromTime time.Time       `json:"from_time"`
	ToTime   time.Time       `json:"to_time"`
	Reason   RoutePassReason `json:"reason"`
	Notes    string          `json:"notes,omitempty"`
}

func (d *RoutePassDetail) MarshalJSON() ([]byte, error) {
	return json.Marshal(routePassJSON(*d))
}

func (d *RoutePassDetail) UnmarshalJSON(b []byte) error {
	var v routePassJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = RoutePassDetail(v)
	return nil
}

// NewDetail returns an empty detail for the kind.
func NewDetail(kind Kind) (Detail, error) {
	switch kind {
	case KindVacation:
		return &VacationDetail{}, nil
	case KindPermit:
		return &PermitDetail{}, nil
	case KindRoutePass:
		return &RoutePassDetail{}, nil
	default:
		return nil, generic.Invalid("kind", "unknown request kind %q", kind)
	}
}

// DecodeDetail parses a detail payload for the given kind.
func DecodeDetail(kind Kind, raw []byte) (Detail, error) {
	d, err := NewDetail(kind)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, generic.Invalid("detail", "is required")
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and keeps the calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

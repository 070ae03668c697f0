/*
Package generic provides the domain-agnostic building blocks of the leave engine.

PURPOSE:
  Leave is measured in days and hours, accrued over service years and spent
  by requests. The types here carry those quantities without knowing what a
  vacation or a permit is, so the accrual calculator, the lifecycle engine and
  the stores all agree on units, rounding, periods and error semantics.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (5 days, 40 hours)
  - HoursPerDay: The fixed 8-hour working day used for every conversion
  - Round: The 2-decimal rounding applied to every persisted balance figure

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point drift
  2. Explicit units: Conversions between days and hours are always named

USAGE:
  worked := generic.NewAmount(40, generic.UnitHours)
  days := worked.InDays()          // 5 days
  generic.Round(days.Value)        // 5.00

SEE ALSO:
  - period.go: Service-year periods
  - time.go: Calendar arithmetic in the configured location
  - errors.go: Error taxonomy shared by every package
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (always time-based for this system)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

// HoursPerDay is the length of a working day for day/hour conversions.
var HoursPerDay = decimal.NewFromInt(8)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.convert(a.Unit).Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.convert(a.Unit).Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }

// InDays converts the amount to days.
func (a Amount) InDays() Amount { return a.convert(UnitDays) }

// InHours converts the amount to hours.
func (a Amount) InHours() Amount { return a.convert(UnitHours) }

func (a Amount) convert(to Unit) Amount {
	switch {
	case a.Unit == to:
		return a
	case a.Unit == UnitHours && to == UnitDays:
		return Amount{Value: a.Value.Div(HoursPerDay), Unit: UnitDays}
	case a.Unit == UnitDays && to == UnitHours:
		return Amount{Value: a.Value.Mul(HoursPerDay), Unit: UnitHours}
	default:
		return Amount{Value: a.Value, Unit: to}
	}
}

func (a Amount) String() string { return a.Value.String() + " " + string(a.Unit) }

// =============================================================================
// ROUNDING
// =============================================================================

// Round rounds a balance figure to two decimal places (half away from zero).
func Round(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// ClampNonNegative returns zero for negative values.
func ClampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

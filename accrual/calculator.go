package accrual

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// INPUTS
// =============================================================================

// Profile is what accrual depends on.
type Profile struct {
	HireDate   time.Time
	Regime     Regime
	Inactivity Timeline
}

// Ledger holds the balance components that are not computed here.
type Ledger struct {
	Historical decimal.Decimal // carried over from prior periods
	Used       decimal.Decimal
	Refunded   decimal.Decimal
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the result of one computation.
type Snapshot struct {
	AsOf           time.Time
	Period         generic.Period
	SeniorityDays  int
	SeniorityYears decimal.Decimal
	MonthsElapsed  int
	AnnualDays     decimal.Decimal

	Accrued      decimal.Decimal // current period, 2 decimals
	AccruedHours decimal.Decimal

	Historical decimal.Decimal
	Used       decimal.Decimal
	Refunded   decimal.Decimal
	Total      decimal.Decimal // may be negative
}

// =============================================================================
// CALCULATOR
// =============================================================================

var daysPerYear = decimal.RequireFromString("365.25")

// Calculator computes balance snapshots in a fixed location.
type Calculator struct {
	Location *time.Location
	Period   generic.PeriodConfig
}

// NewCalculator returns a calculator on the Nov-Oct service year.
func NewCalculator(loc *time.Location) Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return Calculator{Location: loc, Period: generic.ServiceYear}
}

// Compute returns the balance as of asOf. Same inputs, same snapshot.
// The hire date is read as a calendar date in the calculator's location.
func (c Calculator) Compute(p Profile, l Ledger, asOf time.Time) Snapshot {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	cfg := c.Period
	if cfg.Type == "" {
		cfg = generic.ServiceYear
	}
	asOf = asOf.In(loc)
	p.HireDate = generic.NewDate(p.HireDate.Year(), p.HireDate.Month(), p.HireDate.Day(), loc)

	days := SeniorityDays(p, asOf)
	years := decimal.NewFromInt(int64(days)).Div(daysPerYear)

	period := cfg.PeriodFor(asOf)
	months := MonthsElapsed(p.HireDate, period, asOf)

	raw := AccruedDays(p.Regime, years, months)
	accrued := generic.Round(raw)
	total := generic.Round(l.Historical.Add(accrued).Sub(l.Used).Add(l.Refunded))

	return Snapshot{
		AsOf:           asOf,
		Period:         period,
		SeniorityDays:  days,
		SeniorityYears: years,
		MonthsElapsed:  months,
		AnnualDays:     AnnualEntitlement(p.Regime, years),
		Accrued:        accrued,
		AccruedHours:   generic.Round(raw.Mul(generic.HoursPerDay)),
		Historical:     l.Historical,
		Used:           l.Used,
		Refunded:       l.Refunded,
		Total:          total,
	}
}

// SeniorityDays is the whole days of service from hire to asOf, minus
// inactivity. Never negative.
func SeniorityDays(p Profile, asOf time.Time) int {
	if !asOf.After(p.HireDate) {
		return 0
	}
	effective := asOf.Sub(p.HireDate) - p.Inactivity.Total(p.HireDate, asOf)
	if effective <= 0 {
		return 0
	}
	return int(effective / (24 * time.Hour))
}

// MonthsElapsed counts months from max(hire, period start) to asOf. A
// trailing partial month counts once 15 days of it have passed. From the last
// day of the period on, the period is complete.
func MonthsElapsed(hire time.Time, period generic.Period, asOf time.Time) int {
	if hire.After(asOf) {
		return 0
	}
	lastDay := period.End.AddDate(0, 0, -1)
	if !asOf.Before(lastDay) {
		return 12
	}
	from := period.Start
	if hire.After(from) {
		from = hire
	}
	months, days := generic.MonthDiff(from, asOf)
	if days >= 15 {
		months++
	}
	if months < 0 {
		return 0
	}
	if months > 12 {
		return 12
	}
	return months
}

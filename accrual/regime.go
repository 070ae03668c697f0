/*
Package accrual computes how much leave an employee has earned.

PURPOSE:
  The Balance Calculator. Given an employee's hire date, labor regime,
  inactivity history and balance ledger, it returns the accrued days for the
  current service year and the resulting total balance as of an instant.
  It is pure: the only time input is the as-of instant.

REGIMES:
  LOSEP (flat rate):
    - 2.5 days per elapsed month, 30 days for a complete service year
    - Independent of seniority

  Labor code (tiered by seniority):
    - < 1 year:   0 days
    - 1 - 6:     15 days
    - 6 - 7:     16 days
    - 7 - 8:     17 days
    - >= 8:      30 days
    - Prorated: entitlement x months elapsed / 12

SERVICE YEAR:
  Nov 1 - Oct 31. A partial month counts once 15 days of it have elapsed.

SEE ALSO:
  - calculator.go: Compute and the snapshot it returns
  - inactivity.go: Intervals that pause seniority
  - generic/period.go: ServiceYear
*/
package accrual

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Regime identifies the labor-law framework an employee accrues under.
type Regime string

const (
	RegimeLOSEP     Regime = "losep"
	RegimeLaborCode Regime = "labor_code"
)

func (r Regime) Valid() bool {
	return r == RegimeLOSEP || r == RegimeLaborCode
}

func ParseRegime(s string) (Regime, error) {
	r := Regime(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown regime %q", s)
	}
	return r, nil
}

// =============================================================================
// ENTITLEMENT TIERS
// =============================================================================

// TenureTier grants AnnualDays once seniority reaches AfterYears.
type TenureTier struct {
	AfterYears decimal.Decimal
	AnnualDays decimal.Decimal
}

// LaborCodeTiers is the seniority table for RegimeLaborCode, ascending.
var LaborCodeTiers = []TenureTier{
	{AfterYears: decimal.NewFromInt(0), AnnualDays: decimal.NewFromInt(0)},
	{AfterYears: decimal.NewFromInt(1), AnnualDays: decimal.NewFromInt(15)},
	{AfterYears: decimal.NewFromInt(6), AnnualDays: decimal.NewFromInt(16)},
	{AfterYears: decimal.NewFromInt(7), AnnualDays: decimal.NewFromInt(17)},
	{AfterYears: decimal.NewFromInt(8), AnnualDays: decimal.NewFromInt(30)},
}

var (
	losepMonthlyDays = decimal.RequireFromString("2.5")
	twelve           = decimal.NewFromInt(12)
)

// AnnualEntitlement returns the days a full service year is worth.
// Thresholds are inclusive: exactly 6 years earns 16 days.
func AnnualEntitlement(regime Regime, seniorityYears decimal.Decimal) decimal.Decimal {
	switch regime {
	case RegimeLOSEP:
		return losepMonthlyDays.Mul(twelve)
	case RegimeLaborCode:
		annual := decimal.Zero
		for _, tier := range LaborCodeTiers {
			if seniorityYears.GreaterThanOrEqual(tier.AfterYears) {
				annual = tier.AnnualDays
			}
		}
		return annual
	default:
		return decimal.Zero
	}
}

// AccruedDays prorates the entitlement over the months elapsed.
func AccruedDays(regime Regime, seniorityYears decimal.Decimal, months int) decimal.Decimal {
	m := decimal.NewFromInt(int64(months))
	switch regime {
	case RegimeLOSEP:
		return losepMonthlyDays.Mul(m)
	default:
		return AnnualEntitlement(regime, seniorityYears).Mul(m).Div(twelve)
	}
}

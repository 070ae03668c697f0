package accrual_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) time.Time {
	return generic.NewDate(year, month, day, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

var calc = accrual.NewCalculator(time.UTC)

// =============================================================================
// SCENARIO TESTS
// =============================================================================

func TestCompute_LOSEP_SixMonthsIntoServiceYear(t *testing.T) {
	// GIVEN: Hired on the first day of the 2023-2024 service year, LOSEP
	// WHEN: Computing on 2024-05-15 (6 months and 14 days later)
	// THEN: 6 months elapsed, 15.0 days, 120 hours

	profile := accrual.Profile{HireDate: date(2023, 11, 1), Regime: accrual.RegimeLOSEP}

	snap := calc.Compute(profile, accrual.Ledger{}, date(2024, 5, 15))

	assert.Equal(t, 6, snap.MonthsElapsed)
	assertDecimal(t, "15", snap.Accrued)
	assertDecimal(t, "120", snap.AccruedHours)
	assertDecimal(t, "15", snap.Total)
	assert.Equal(t, date(2023, 11, 1), snap.Period.Start)
}

func TestCompute_PartialMonthCountsFromFifteenDays(t *testing.T) {
	profile := accrual.Profile{HireDate: date(2023, 11, 1), Regime: accrual.RegimeLOSEP}

	before := calc.Compute(profile, accrual.Ledger{}, date(2024, 5, 15))
	after := calc.Compute(profile, accrual.Ledger{}, date(2024, 5, 16))

	assert.Equal(t, 6, before.MonthsElapsed)
	assert.Equal(t, 7, after.MonthsElapsed)
	assertDecimal(t, "17.5", after.Accrued)
}

func TestCompute_MidPeriodHireCountsFromHireDate(t *testing.T) {
	profile := accrual.Profile{HireDate: date(2024, 2, 10), Regime: accrual.RegimeLOSEP}

	snap := calc.Compute(profile, accrual.Ledger{}, date(2024, 5, 1))

	// Feb 10 -> May 1 is 2 months and 21 days
	assert.Equal(t, 3, snap.MonthsElapsed)
	assertDecimal(t, "7.5", snap.Accrued)
}

func TestCompute_CompletePeriodOnLastDay(t *testing.T) {
	profile := accrual.Profile{HireDate: date(2020, 1, 1), Regime: accrual.RegimeLOSEP}

	snap := calc.Compute(profile, accrual.Ledger{}, date(2024, 10, 31))

	assert.Equal(t, 12, snap.MonthsElapsed)
	assertDecimal(t, "30", snap.Accrued)
}

func TestCompute_NewServiceYearResetsMonths(t *testing.T) {
	profile := accrual.Profile{HireDate: date(2020, 1, 1), Regime: accrual.RegimeLOSEP}

	snap := calc.Compute(profile, accrual.Ledger{}, date(2024, 11, 1))

	assert.Equal(t, 0, snap.MonthsElapsed)
	assertDecimal(t, "0", snap.Accrued)
	assert.Equal(t, "2024-2025", snap.Period.Label())
}

func TestCompute_HireAfterAsOfAccruesNothing(t *testing.T) {
	profile := accrual.Profile{HireDate: date(2025, 1, 1), Regime: accrual.RegimeLOSEP}

	snap := calc.Compute(profile, accrual.Ledger{}, date(2024, 12, 1))

	assert.Equal(t, 0, snap.MonthsElapsed)
	assert.Equal(t, 0, snap.SeniorityDays)
	assertDecimal(t, "0", snap.Accrued)
}

func TestCompute_LaborCode_InactivityLowersTier(t *testing.T) {
	// GIVEN: Hired 2016-01-01 under the labor code
	//   Without inactivity: 3057 days, 8.37 years -> 30 days/year
	//   With two years inactive: 2326 days, 6.37 years -> 16 days/year
	// WHEN: Computing on 2024-05-15 (6 months into the service year)
	// THEN: 15.00 vs 8.00 accrued

	hire := date(2016, 1, 1)
	end := date(2021, 1, 1)

	plain := calc.Compute(accrual.Profile{HireDate: hire, Regime: accrual.RegimeLaborCode}, accrual.Ledger{}, date(2024, 5, 15))
	paused := calc.Compute(accrual.Profile{
		HireDate: hire,
		Regime:   accrual.RegimeLaborCode,
		Inactivity: accrual.Timeline{
			{Start: date(2019, 1, 1), End: &end, Reason: "leave of absence"},
		},
	}, accrual.Ledger{}, date(2024, 5, 15))

	assert.Equal(t, 3057, plain.SeniorityDays)
	assertDecimal(t, "30", plain.AnnualDays)
	assertDecimal(t, "15", plain.Accrued)

	assert.Equal(t, 2326, paused.SeniorityDays)
	assertDecimal(t, "16", paused.AnnualDays)
	assertDecimal(t, "8", paused.Accrued)
	assertDecimal(t, "64", paused.AccruedHours)
}

func TestCompute_LaborCode_FirstAnniversary(t *testing.T) {
	// Seniority years are days / 365.25, so a first anniversary spanning no
	// Feb 29 is 365 days = 0.9993 years, still below the one year tier.
	// The tier is reached one day later, or on the anniversary itself when
	// the year contains a Feb 29.
	tests := []struct {
		name     string
		hire     time.Time
		asOf     time.Time
		wantDays int
		wantTier string
	}{
		{"day before anniversary", date(2024, 11, 1), date(2025, 10, 31), 364, "0"},
		{"anniversary without leap day", date(2024, 11, 1), date(2025, 11, 1), 365, "0"},
		{"day after anniversary", date(2024, 11, 1), date(2025, 11, 2), 366, "15"},
		{"anniversary across a leap day", date(2023, 11, 1), date(2024, 11, 1), 366, "15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := calc.Compute(accrual.Profile{HireDate: tt.hire, Regime: accrual.RegimeLaborCode}, accrual.Ledger{}, tt.asOf)
			assert.Equal(t, tt.wantDays, snap.SeniorityDays)
			assertDecimal(t, tt.wantTier, snap.AnnualDays)
		})
	}
}

func TestCompute_OpenInactivityRunsToAsOf(t *testing.T) {
	profile := accrual.Profile{
		HireDate: date(2023, 1, 1),
		Regime:   accrual.RegimeLaborCode,
		Inactivity: accrual.Timeline{
			{Start: date(2023, 6, 1), Reason: "suspended"},
		},
	}

	snap := calc.Compute(profile, accrual.Ledger{}, date(2024, 6, 1))

	// 517 calendar days, of which 366 inactive
	assert.Equal(t, 151, snap.SeniorityDays)
	assertDecimal(t, "0", snap.AnnualDays)
	assertDecimal(t, "0", snap.Accrued)
}

func TestCompute_TotalMayGoNegative(t *testing.T) {
	profile := accrual.Profile{HireDate: date(2023, 11, 1), Regime: accrual.RegimeLOSEP}
	ledger := accrual.Ledger{Used: dec("7.5")}

	snap := calc.Compute(profile, ledger, date(2024, 1, 1))

	assertDecimal(t, "5", snap.Accrued)
	assertDecimal(t, "-2.5", snap.Total)
}

func TestCompute_TotalCombinesLedger(t *testing.T) {
	profile := accrual.Profile{HireDate: date(2023, 11, 1), Regime: accrual.RegimeLOSEP}
	ledger := accrual.Ledger{Historical: dec("12.333"), Used: dec("5"), Refunded: dec("1.25")}

	snap := calc.Compute(profile, ledger, date(2024, 5, 15))

	// 12.333 + 15 - 5 + 1.25 = 23.583
	assertDecimal(t, "23.58", snap.Total)
}

func TestCompute_Idempotent(t *testing.T) {
	end := date(2020, 3, 1)
	profile := accrual.Profile{
		HireDate: date(2012, 7, 19),
		Regime:   accrual.RegimeLaborCode,
		Inactivity: accrual.Timeline{
			{Start: date(2019, 9, 1), End: &end, Reason: "unpaid leave"},
		},
	}
	ledger := accrual.Ledger{Historical: dec("3.5"), Used: dec("2.125"), Refunded: dec("0.5")}
	asOf := time.Date(2024, 8, 20, 14, 30, 0, 0, time.UTC)

	first := calc.Compute(profile, ledger, asOf)
	second := calc.Compute(profile, ledger, asOf)

	assert.Equal(t, first.MonthsElapsed, second.MonthsElapsed)
	assert.Equal(t, first.SeniorityDays, second.SeniorityDays)
	assert.Equal(t, first.Accrued.String(), second.Accrued.String())
	assert.Equal(t, first.AccruedHours.String(), second.AccruedHours.String())
	assert.Equal(t, first.Total.String(), second.Total.String())
	assert.Equal(t, first.SeniorityYears.String(), second.SeniorityYears.String())
}

func TestCompute_InLocation(t *testing.T) {
	loc, err := generic.LoadLocation(generic.DefaultTimezone)
	require.NoError(t, err)
	ecuador := accrual.NewCalculator(loc)

	// 2024-11-01 03:00 UTC is still Oct 31 in Guayaquil
	asOf := time.Date(2024, 11, 1, 3, 0, 0, 0, time.UTC)
	snap := ecuador.Compute(accrual.Profile{HireDate: date(2020, 1, 1), Regime: accrual.RegimeLOSEP}, accrual.Ledger{}, asOf)

	assert.Equal(t, "2023-2024", snap.Period.Label())
	assert.Equal(t, 12, snap.MonthsElapsed)
}

// =============================================================================
// ENTITLEMENT TESTS
// =============================================================================

func TestAnnualEntitlement_LaborCodeTiers(t *testing.T) {
	tests := []struct {
		years string
		want  string
	}{
		{"0", "0"},
		{"0.5", "0"},
		{"0.99", "0"},
		{"1.0", "15"},
		{"5.99", "15"},
		{"6", "16"},
		{"6.5", "16"},
		{"7", "17"},
		{"7.5", "17"},
		{"8", "30"},
		{"10", "30"},
	}

	for _, tt := range tests {
		t.Run(tt.years, func(t *testing.T) {
			got := accrual.AnnualEntitlement(accrual.RegimeLaborCode, dec(tt.years))
			assertDecimal(t, tt.want, got)
		})
	}
}

func TestAnnualEntitlement_LOSEPIgnoresSeniority(t *testing.T) {
	assertDecimal(t, "30", accrual.AnnualEntitlement(accrual.RegimeLOSEP, dec("0.1")))
	assertDecimal(t, "30", accrual.AnnualEntitlement(accrual.RegimeLOSEP, dec("20")))
}

func TestAccruedDays_LaborCodeProrated(t *testing.T) {
	assertDecimal(t, "6.25", accrual.AccruedDays(accrual.RegimeLaborCode, dec("3"), 5))
	assertDecimal(t, "15", accrual.AccruedDays(accrual.RegimeLaborCode, dec("3"), 12))
}

func TestParseRegime(t *testing.T) {
	r, err := accrual.ParseRegime("labor_code")
	require.NoError(t, err)
	assert.Equal(t, accrual.RegimeLaborCode, r)

	_, err = accrual.ParseRegime("freelance")
	assert.Error(t, err)
}

// =============================================================================
// INACTIVITY TIMELINE TESTS
// =============================================================================

func TestTimeline_DeactivateReactivate(t *testing.T) {
	var tl accrual.Timeline

	tl, err := tl.Deactivate(date(2024, 1, 10), "medical leave")
	require.NoError(t, err)

	_, err = tl.Deactivate(date(2024, 1, 11), "again")
	assert.ErrorIs(t, err, accrual.ErrAlreadyInactive, "at most one open interval")

	open, ok := tl.Open()
	require.True(t, ok)
	assert.Equal(t, "medical leave", open.Reason)

	tl, err = tl.Reactivate(date(2024, 2, 10))
	require.NoError(t, err)
	_, ok = tl.Open()
	assert.False(t, ok)
	require.Len(t, tl, 1)
	assert.Equal(t, date(2024, 2, 10), *tl[0].End)

	_, err = tl.Reactivate(date(2024, 3, 1))
	assert.ErrorIs(t, err, accrual.ErrNotInactive)
}

func TestTimeline_TotalClipsToHire(t *testing.T) {
	end := date(2024, 1, 11)
	tl := accrual.Timeline{{Start: date(2023, 12, 1), End: &end}}

	got := tl.Total(date(2024, 1, 1), date(2024, 6, 1))

	assert.Equal(t, 10*24*time.Hour, got)
}

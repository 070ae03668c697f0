package generic_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) time.Time {
	return generic.NewDate(year, month, day, time.UTC)
}

// =============================================================================
// AMOUNT TESTS
// =============================================================================

func TestAmount_HoursToDays(t *testing.T) {
	hours := generic.NewAmount(40, generic.UnitHours)

	got := hours.InDays()

	assert.Equal(t, generic.UnitDays, got.Unit)
	assert.True(t, got.Value.Equal(decimal.NewFromInt(5)), "40h should be 5 days, got %s", got.Value)
}

func TestAmount_AddConvertsUnits(t *testing.T) {
	total := generic.NewAmount(1, generic.UnitDays).Add(generic.NewAmount(4, generic.UnitHours))

	assert.True(t, total.Value.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, generic.UnitDays, total.Unit)
}

func TestRound_TwoDecimals(t *testing.T) {
	assert.Equal(t, "1.67", generic.Round(decimal.RequireFromString("1.666")).StringFixed(2))
	assert.Equal(t, "-0.13", generic.Round(decimal.RequireFromString("-0.126")).StringFixed(2))
}

func TestClampNonNegative(t *testing.T) {
	assert.True(t, generic.ClampNonNegative(decimal.NewFromInt(-3)).IsZero())
	assert.True(t, generic.ClampNonNegative(decimal.NewFromInt(3)).Equal(decimal.NewFromInt(3)))
}

// =============================================================================
// CALENDAR TESTS
// =============================================================================

func TestDaysBetween_IgnoresTimeOfDay(t *testing.T) {
	from := time.Date(2025, time.January, 6, 23, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.January, 10, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 4, generic.DaysBetween(from, to))
	assert.Equal(t, -4, generic.DaysBetween(to, from))
}

func TestHoursBetween_Fractional(t *testing.T) {
	from := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.March, 3, 10, 30, 0, 0, time.UTC)

	assert.Equal(t, "2.5", generic.HoursBetween(from, to).String())
}

func TestMonthDiff(t *testing.T) {
	tests := []struct {
		name       string
		from, to   time.Time
		wantMonths int
		wantDays   int
	}{
		{"same day", date(2024, 5, 15), date(2024, 5, 15), 0, 0},
		{"exact months", date(2023, 11, 1), date(2024, 5, 1), 6, 0},
		{"months plus days", date(2023, 11, 1), date(2024, 5, 15), 6, 14},
		{"leftover fifteen", date(2023, 11, 1), date(2024, 5, 16), 6, 15},
		{"end of month clamp", date(2024, 1, 31), date(2024, 2, 29), 1, 0},
		{"not yet a month", date(2024, 1, 31), date(2024, 2, 28), 0, 28},
		{"reverse order", date(2024, 5, 1), date(2024, 1, 1), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			months, days := generic.MonthDiff(tt.from, tt.to)
			assert.Equal(t, tt.wantMonths, months, "months")
			assert.Equal(t, tt.wantDays, days, "days")
		})
	}
}

func TestLoadLocation_DefaultZone(t *testing.T) {
	loc, err := generic.LoadLocation("")
	require.NoError(t, err)

	at := time.Date(2025, time.June, 1, 12, 0, 0, 0, loc)
	_, offset := at.Zone()
	assert.Equal(t, -5*3600, offset, "Ecuador has no DST")
}

// =============================================================================
// PERIOD TESTS
// =============================================================================

func TestServiceYear_PeriodFor(t *testing.T) {
	tests := []struct {
		at        time.Time
		wantStart time.Time
		wantLabel string
	}{
		{date(2024, 5, 15), date(2023, 11, 1), "2023-2024"},
		{date(2024, 11, 1), date(2024, 11, 1), "2024-2025"},
		{date(2024, 10, 31), date(2023, 11, 1), "2023-2024"},
		{date(2024, 12, 31), date(2024, 11, 1), "2024-2025"},
	}

	for _, tt := range tests {
		t.Run(tt.at.Format("2006-01-02"), func(t *testing.T) {
			p := generic.ServiceYear.PeriodFor(tt.at)
			assert.Equal(t, tt.wantStart, p.Start)
			assert.Equal(t, tt.wantStart.AddDate(1, 0, 0), p.End)
			assert.Equal(t, tt.wantLabel, p.Label())
			assert.True(t, p.Contains(tt.at))
		})
	}
}

func TestCalendarYear_PeriodFor(t *testing.T) {
	p := generic.PeriodConfig{Type: generic.PeriodCalendarYear}.PeriodFor(date(2025, 7, 4))

	assert.Equal(t, date(2025, 1, 1), p.Start)
	assert.Equal(t, "2025", p.Label())
	assert.False(t, p.Contains(date(2026, 1, 1)))
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestStructuredErrors_Unwrap(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&generic.NotFoundError{Entity: "request", ID: "r-1"}, generic.ErrNotFound},
		{&generic.TransitionError{RequestID: "r-1", From: "approved", Operation: "cancel"}, generic.ErrInvalidStateTransition},
		{&generic.OperationError{Kind: "vacation", Operation: "discount"}, generic.ErrInvalidOperation},
		{generic.Invalid("to", "before from"), generic.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.want.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.want))
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, generic.IsRetryable(fmt.Errorf("x: %w", generic.ErrPersistenceConflict)))
	assert.False(t, generic.IsRetryable(generic.ErrNotFound))
	assert.True(t, generic.IsClientError(generic.Invalid("amount", "negative")))
	assert.True(t, generic.IsNotFound(&generic.NotFoundError{Entity: "employee", ID: "e"}))
}

func TestFakeClock(t *testing.T) {
	start := date(2025, 1, 1)
	clock := generic.NewFakeClock(start)

	clock.Advance(36 * time.Hour)

	assert.Equal(t, start.Add(36*time.Hour), clock.Now())
}

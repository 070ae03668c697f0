package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LOCATION - All calendar arithmetic happens in one configured zone
// =============================================================================

// DefaultTimezone is the zone the organisation keeps its calendar in.
const DefaultTimezone = "America/Guayaquil"

// LoadLocation resolves a zone name, falling back to a fixed UTC-5 offset
// when the host has no zoneinfo for the default zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultTimezone {
			return time.FixedZone("ECT", -5*60*60), nil
		}
		return nil, err
	}
	return loc, nil
}

// =============================================================================
// DATES
// =============================================================================

// NewDate returns midnight of the given day in loc.
func NewDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// DateOf truncates t to midnight of its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween counts calendar days from one date to another, ignoring the
// time of day and DST shifts. Negative when to is before from.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

// HoursBetween returns the exact hour delta between two instants.
func HoursBetween(from, to time.Time) decimal.Decimal {
	return decimal.NewFromInt(int64(to.Sub(from) / time.Second)).Div(decimal.NewFromInt(3600))
}

// MonthDiff returns the calendar difference between two dates as whole months
// plus leftover days. Adding months clamps to the end of shorter months, so
// Jan 31 + 1 month is Feb 28. Returns zeros when to is before from.
func MonthDiff(from, to time.Time) (months, days int) {
	if DaysBetween(from, to) <= 0 {
		return 0, 0
	}
	months = (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	anchor := AddMonthsClamped(from, months)
	for months > 0 && DaysBetween(anchor, to) < 0 {
		months--
		anchor = AddMonthsClamped(from, months)
	}
	return months, DaysBetween(anchor, to)
}

// AddMonthsClamped adds n calendar months, clamping the day to the last day
// of the target month.
func AddMonthsClamped(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := t.Day()
	if last := EndOfMonth(first).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func EndOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -1)
}

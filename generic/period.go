package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The window a balance accrues against
// =============================================================================

// Period defines the time boundary for accrual.
// Start is inclusive, End is the first instant after the period.
//
// Examples:
//   - Service year 2024: Nov 1 2024 - Nov 1 2025
//   - Calendar year 2025: Jan 1 2025 - Jan 1 2026
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Label renders the period as "2024-2025" (or "2025" for calendar years).
func (p Period) Label() string {
	last := p.End.AddDate(0, 0, -1)
	if last.Year() == p.Start.Year() {
		return fmt.Sprintf("%d", p.Start.Year())
	}
	return fmt.Sprintf("%d-%d", p.Start.Year(), last.Year())
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + ")"
}

// PeriodType defines how periods are calculated
type PeriodType string

const (
	PeriodCalendarYear PeriodType = "calendar_year" // Jan 1 - Dec 31
	PeriodFiscalYear   PeriodType = "fiscal_year"   // Custom start month
)

// PeriodConfig defines how to calculate periods
type PeriodConfig struct {
	Type PeriodType

	// For fiscal year: which month starts the year (1-12)
	FiscalYearStartMonth time.Month
}

// ServiceYear is the Nov 1 - Oct 31 accrual window.
var ServiceYear = PeriodConfig{Type: PeriodFiscalYear, FiscalYearStartMonth: time.November}

// =============================================================================
// PERIOD CALCULATOR - Determines which period a date falls into
// =============================================================================

// PeriodFor returns the period that contains the given instant, in the
// instant's own location.
func (pc PeriodConfig) PeriodFor(t time.Time) Period {
	switch pc.Type {
	case PeriodFiscalYear:
		return pc.fiscalYearPeriod(t)
	default:
		start := NewDate(t.Year(), time.January, 1, t.Location())
		return Period{Start: start, End: start.AddDate(1, 0, 0)}
	}
}

func (pc PeriodConfig) fiscalYearPeriod(t time.Time) Period {
	year := t.Year()
	if t.Month() < pc.FiscalYearStartMonth {
		year--
	}
	start := NewDate(year, pc.FiscalYearStartMonth, 1, t.Location())
	return Period{Start: start, End: start.AddDate(1, 0, 0)}
}

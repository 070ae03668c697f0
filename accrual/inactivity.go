package accrual

import (
	"errors"
	"sort"
	"time"
)

// InactivityPeriod pauses seniority. A nil End means still inactive.
type InactivityPeriod struct {
	Start  time.Time  `json:"start" bson:"start"`
	End    *time.Time `json:"end,omitempty" bson:"end,omitempty"`
	Reason string     `json:"reason" bson:"reason"`
}

func (p InactivityPeriod) IsOpen() bool { return p.End == nil }

// durationUntil returns the part of the interval inside [from, asOf].
func (p InactivityPeriod) durationUntil(from, asOf time.Time) time.Duration {
	start := p.Start
	if start.Before(from) {
		start = from
	}
	end := asOf
	if p.End != nil && p.End.Before(asOf) {
		end = *p.End
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

var (
	ErrAlreadyInactive = errors.New("employee already has an open inactivity period")
	ErrNotInactive     = errors.New("employee has no open inactivity period")
)

// Timeline is an employee's ordered inactivity history.
type Timeline []InactivityPeriod

// Open returns the open interval, if any.
func (t Timeline) Open() (InactivityPeriod, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].IsOpen() {
			return t[i], true
		}
	}
	return InactivityPeriod{}, false
}

// Deactivate opens a new interval at the given instant.
func (t Timeline) Deactivate(at time.Time, reason string) (Timeline, error) {
	if _, open := t.Open(); open {
		return t, ErrAlreadyInactive
	}
	out := append(Timeline{}, t...)
	out = append(out, InactivityPeriod{Start: at, Reason: reason})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Reactivate closes the open interval at the given instant.
func (t Timeline) Reactivate(at time.Time) (Timeline, error) {
	out := append(Timeline{}, t...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].IsOpen() {
			end := at
			if end.Before(out[i].Start) {
				end = out[i].Start
			}
			out[i].End = &end
			return out, nil
		}
	}
	return t, ErrNotInactive
}

// Total sums inactivity inside [hire, asOf]; open intervals run to asOf.
func (t Timeline) Total(hire, asOf time.Time) time.Duration {
	var total time.Duration
	for _, p := range t {
		total += p.durationUntil(hire, asOf)
	}
	return total
}

package rrule

import (
	"time"

	"icalevents/internal/caltime"
)

// maxSkippedPeriods bounds the search for a month that holds the candidate's
// day of month (Feb 29 rules need up to eight years around 2100).
const maxSkippedPeriods = 100

// Advance returns the next candidate instant strictly after from. Candidates
// still have to pass Matches.
//
// When BYxxx parts imply a finer step than FREQ, Advance walks by that finer
// unit inside the current FREQ period. Leaving the period jumps INTERVAL
// periods ahead from the period start and restores the fields finer than the
// step from the previous candidate, so "last weekday of the month" style
// rules roll over cleanly.
func (r *Rule) Advance(from caltime.Instant) (caltime.Instant, error) {
	t := from.Time
	wkst := r.weekStart()
	step := r.advanceFreq()

	var next time.Time
	switch {
	case step == r.Freq && (r.Freq == Monthly || r.Freq == Yearly):
		// Months without the candidate's day of month are skipped, never clamped.
		months := r.Interval
		if r.Freq == Yearly {
			months *= 12
		}
		ok := false
		for k := 1; k <= maxSkippedPeriods && !ok; k++ {
			next, ok = addMonthsExact(t, k*months)
		}
		if !ok {
			return caltime.Instant{}, &caltime.AdvanceError{From: t, Reason: "no later month holds day " + t.Format("02")}
		}
	case step == r.Freq:
		next = addUnits(t, r.Freq, r.Interval)
	default:
		next = addUnits(t, step, 1)
		for k := 2; step == Monthly && next.Day() != t.Day() && samePeriod(next, t, r.Freq, wkst); k++ {
			next = addUnits(t, step, k)
		}
		if !samePeriod(next, t, r.Freq, wkst) {
			base := startOf(addUnits(t, r.Freq, r.Interval), r.Freq, wkst)
			var ok bool
			if next, ok = anchor(base, t, step); !ok {
				return caltime.Instant{}, &caltime.AdvanceError{From: t, Reason: "day of month does not exist in " + base.Format("2006-01")}
			}
		}
	}

	if y := next.Year(); y < 1 || y > 9999 {
		return caltime.Instant{}, &caltime.AdvanceError{From: t, Reason: "year out of range"}
	}
	if !next.After(t) {
		return caltime.Instant{}, &caltime.AdvanceError{From: t, Reason: "next candidate " + next.Format(time.RFC3339) + " is not later"}
	}
	return caltime.Instant{Time: next, DateOnly: from.DateOnly}, nil
}

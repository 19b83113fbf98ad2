package rrule

import (
	"time"

	"icalevents/internal/caltime"
)

// SkipTo jumps from dtstart to a later candidate of the Advance sequence
// without walking the steps in between. The result starts the last
// INTERVAL-aligned FREQ period at or before target, so no skipped candidate
// lies at or after target. It returns dtstart when nothing can be skipped.
//
// Skipped candidates are never evaluated, so callers that need to count
// matches (COUNT) must walk from dtstart instead.
func (r *Rule) SkipTo(dtstart caltime.Instant, target time.Time) caltime.Instant {
	start := dtstart.Time
	target = target.In(start.Location())
	if !target.After(start) {
		return dtstart
	}

	var (
		next time.Time
		ok   bool
	)
	if step := r.advanceFreq(); step == r.Freq {
		next, ok = r.skipUnits(start, target)
	} else {
		next, ok = r.skipPeriods(start, target, step)
	}
	if !ok || !next.After(start) {
		return dtstart
	}
	return caltime.Instant{Time: next, DateOnly: dtstart.DateOnly}
}

// skipUnits handles rules that step by FREQ itself: candidates are
// start + k*INTERVAL units.
func (r *Rule) skipUnits(start, target time.Time) (time.Time, bool) {
	switch r.Freq {
	case Monthly, Yearly:
		months := r.Interval
		if r.Freq == Yearly {
			months *= 12
		}
		n := monthsBetween(start, target) / months
		for i := 0; n > 0 && i < maxSkippedPeriods; i, n = i+1, n-1 {
			if next, ok := addMonthsExact(start, n*months); ok && !next.After(target) {
				return next, true
			}
		}
		return time.Time{}, false
	case Daily, Weekly:
		days := r.Interval
		if r.Freq == Weekly {
			days *= 7
		}
		n := (dayNumber(target) - dayNumber(start)) / days
		next := caltime.AddDays(start, n*days)
		if next.After(target) {
			n--
			next = caltime.AddDays(start, n*days)
		}
		return next, n > 0
	default:
		every := time.Duration(r.Interval) * unitDuration(r.Freq)
		n := target.Sub(start) / every
		return start.Add(n * every), n > 0
	}
}

// skipPeriods handles rules that walk a finer unit inside each FREQ period.
// The first candidate of a period is its anchor.
func (r *Rule) skipPeriods(start, target time.Time, step Freq) (time.Time, bool) {
	wkst := r.weekStart()
	first := startOf(start, r.Freq, wkst)
	last := startOf(target, r.Freq, wkst)

	var n int
	switch r.Freq {
	case Yearly:
		n = last.Year() - first.Year()
	case Monthly:
		n = monthsBetween(first, last)
	case Weekly:
		n = (dayNumber(last) - dayNumber(first)) / 7
	case Daily:
		n = dayNumber(last) - dayNumber(first)
	default:
		n = int(last.Sub(first) / unitDuration(r.Freq))
	}
	n -= n % r.Interval
	if n <= 0 {
		return time.Time{}, false
	}
	return anchor(startOf(addUnits(first, r.Freq, n), r.Freq, wkst), start, step)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func unitDuration(f Freq) time.Duration {
	switch f {
	case Secondly:
		return time.Second
	case Minutely:
		return time.Minute
	default:
		return time.Hour
	}
}

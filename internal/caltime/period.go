package caltime

import (
	"strings"
	"time"
)

// Period is an explicit span of time. The start/duration form of a PERIOD
// value is resolved to an explicit End when parsed.
type Period struct {
	Start Instant
	End   Instant
}

// PeriodOf builds the period starting at start and lasting d.
func PeriodOf(start Instant, d Duration) Period {
	return Period{Start: start, End: start.AddDuration(d)}
}

// Duration returns the exact elapsed length of the period.
func (p Period) Duration() Duration {
	return Exact(p.End.Sub(p.Start))
}

func (p Period) String() string {
	return p.Start.String() + "/" + p.End.String()
}

// Interval is a closed query window [Start, End].
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether Start <= t <= End.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// EndsBefore reports whether the whole interval lies before t.
func (iv Interval) EndsBefore(t time.Time) bool {
	return iv.End.Before(t)
}

// Valid reports whether End is not before Start.
func (iv Interval) Valid() bool {
	return !iv.End.Before(iv.Start)
}

// ParseBound reads a query bound given as "2006-01-02" (a day in loc) or
// RFC 3339. With endOfDay a bare day means the last instant of that day.
func ParseBound(s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, formatErr("date", s, "expected YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		return AddDays(day, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

// YearFrom is the default query window: from the start of now's month (UTC
// wall clock) to the end of the month eleven months later.
func YearFrom(now time.Time) Interval {
	y, m, _ := now.UTC().Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return Interval{Start: start, End: AddMonths(start, 12).Add(-time.Millisecond)}
}

package rrule

import (
	"time"

	"icalevents/internal/caltime"
)

// field names the sub-period fields that can be copied between instants.
type field int

const (
	fieldNanos field = iota
	fieldSecond
	fieldMinute
	fieldHour
	fieldDay
	fieldMonth
)

// startOf truncates t to the beginning of its unit-long period, in t's zone.
func startOf(t time.Time, unit Freq, wkst time.Weekday) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch unit {
	case Secondly:
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc)
	case Minutely:
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
	case Hourly:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case Daily:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case Weekly:
		back := (int(t.Weekday()) - int(wkst) + 7) % 7
		return time.Date(y, m, d-back, 0, 0, 0, 0, loc)
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	}
}

// anchor places the first candidate of the period starting at periodStart:
// fields finer than step come from src, and weekly steps keep src's weekday.
func anchor(periodStart, src time.Time, step Freq) (time.Time, bool) {
	t, ok := copyFields(periodStart, src, keepFrom(step))
	if !ok {
		return time.Time{}, false
	}
	if step == Weekly {
		t = caltime.AddDays(t, (int(src.Weekday())-int(t.Weekday())+7)%7)
	}
	return t, true
}

// addMonthsExact adds n months and reports false when the day of month does
// not exist in the target month.
func addMonthsExact(t time.Time, n int) (time.Time, bool) {
	next := caltime.AddMonths(t, n)
	return next, next.Day() == t.Day()
}

func samePeriod(a, b time.Time, unit Freq, wkst time.Weekday) bool {
	return startOf(a, unit, wkst).Equal(startOf(b, unit, wkst))
}

// addUnits adds n units. Sub-day units are exact; day and longer units keep
// the wall clock, and month/year steps clamp the day of month.
func addUnits(t time.Time, unit Freq, n int) time.Time {
	switch unit {
	case Secondly:
		return t.Add(time.Duration(n) * time.Second)
	case Minutely:
		return t.Add(time.Duration(n) * time.Minute)
	case Hourly:
		return t.Add(time.Duration(n) * time.Hour)
	case Daily:
		return caltime.AddDays(t, n)
	case Weekly:
		return caltime.AddDays(t, 7*n)
	case Monthly:
		return caltime.AddMonths(t, n)
	default:
		return caltime.AddMonths(t, 12*n)
	}
}

// copyFields overwrites the fields of t up to and including upTo with the
// values from src. It fails when the result is not a real calendar date.
func copyFields(t, src time.Time, upTo field) (time.Time, bool) {
	y, m, d := t.Date()
	h, mi, s, ns := t.Hour(), t.Minute(), t.Second(), t.Nanosecond()

	ns = src.Nanosecond()
	if upTo >= fieldSecond {
		s = src.Second()
	}
	if upTo >= fieldMinute {
		mi = src.Minute()
	}
	if upTo >= fieldHour {
		h = src.Hour()
	}
	if upTo >= fieldMonth {
		m = src.Month()
	}
	if upTo >= fieldDay {
		d = src.Day()
		if d > caltime.DaysInMonth(y, m) {
			return time.Time{}, false
		}
	}
	return time.Date(y, m, d, h, mi, s, ns, t.Location()), true
}

// dayNumber counts civil days since the Unix epoch for t's wall-clock date.
func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// firstWeekStart returns the day number on which week 1 of year begins: the
// week starting on wkst that holds at least four days of January.
func firstWeekStart(year int, wkst time.Weekday) int {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	back := (int(jan4.Weekday()) - int(wkst) + 7) % 7
	return dayNumber(jan4) - back
}

// weekNumber returns t's week of its week-numbering year and that year's
// number of weeks (52 or 53), for weeks starting on wkst.
func weekNumber(t time.Time, wkst time.Weekday) (week, weeksInYear int) {
	day := dayNumber(t)
	year := t.Year()
	start := firstWeekStart(year, wkst)
	if day < start {
		year--
		start = firstWeekStart(year, wkst)
	} else if next := firstWeekStart(year+1, wkst); day >= next {
		year++
		start = next
	}
	week = (day-start)/7 + 1
	weeksInYear = (firstWeekStart(year+1, wkst) - start) / 7
	return week, weeksInYear
}

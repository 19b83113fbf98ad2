// Package rrule parses RFC 5545 recurrence rules, tests instants against them
// and steps from one candidate instant to the next.
package rrule

import (
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"

	"icalevents/internal/caltime"
)

// Freq is the FREQ rule part, ordered from the finest to the coarsest unit.
type Freq int

const (
	Secondly Freq = iota
	Minutely
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

var freqNames = [...]string{"SECONDLY", "MINUTELY", "HOURLY", "DAILY", "WEEKLY", "MONTHLY", "YEARLY"}

func (f Freq) String() string {
	if f < Secondly || f > Yearly {
		return "Freq(" + strconv.Itoa(int(f)) + ")"
	}
	return freqNames[f]
}

func parseFreq(s string) (Freq, bool) {
	for i, name := range freqNames {
		if name == s {
			return Freq(i), true
		}
	}
	return 0, false
}

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

func weekdayCode(d time.Weekday) string {
	return strings.ToUpper(d.String()[:2])
}

// WeekdayNum is one BYDAY entry such as "TU", "2FR" or "-1SU".
// N is 0 when no ordinal was given.
type WeekdayNum struct {
	N   int
	Day time.Weekday
}

func (w WeekdayNum) String() string {
	if w.N == 0 {
		return weekdayCode(w.Day)
	}
	return strconv.Itoa(w.N) + weekdayCode(w.Day)
}

// Rule is a parsed RRULE. The zero value is not usable; build rules with Parse.
type Rule struct {
	Freq     Freq
	Until    mo.Option[caltime.Instant]
	Count    mo.Option[int]
	Interval int

	BySecond   []int
	ByMinute   []int
	ByHour     []int
	ByDay      []WeekdayNum
	ByMonthDay []int
	ByYearDay  []int
	ByWeekNo   []int
	ByMonth    []int
	BySetPos   []int

	WeekStart time.Weekday
}

// String renders the rule back to RRULE value syntax.
func (r *Rule) String() string {
	parts := []string{"FREQ=" + r.Freq.String()}

	if until, ok := r.Until.Get(); ok {
		v := until.Time.UTC().Format("20060102T150405Z")
		if until.DateOnly {
			v, _ = until.Format()
		}
		parts = append(parts, "UNTIL="+v)
	}
	if count, ok := r.Count.Get(); ok {
		parts = append(parts, "COUNT="+strconv.Itoa(count))
	}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}

	ints := func(key string, vs []int) {
		if len(vs) == 0 {
			return
		}
		s := make([]string, len(vs))
		for i, v := range vs {
			s[i] = strconv.Itoa(v)
		}
		parts = append(parts, key+"="+strings.Join(s, ","))
	}
	ints("BYSECOND", r.BySecond)
	ints("BYMINUTE", r.ByMinute)
	ints("BYHOUR", r.ByHour)
	if len(r.ByDay) > 0 {
		s := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			s[i] = d.String()
		}
		parts = append(parts, "BYDAY="+strings.Join(s, ","))
	}
	ints("BYMONTHDAY", r.ByMonthDay)
	ints("BYYEARDAY", r.ByYearDay)
	ints("BYWEEKNO", r.ByWeekNo)
	ints("BYMONTH", r.ByMonth)
	ints("BYSETPOS", r.BySetPos)

	if r.WeekStart != time.Monday {
		parts = append(parts, "WKST="+weekdayCode(r.WeekStart))
	}
	return strings.Join(parts, ";")
}

// advanceFreq is the finest unit implied by FREQ and the populated BYxxx
// parts. Advance steps by it and the BYSETPOS window is walked with it.
func (r *Rule) advanceFreq() Freq {
	switch {
	case r.Freq == Secondly || len(r.BySecond) > 0:
		return Secondly
	case r.Freq == Minutely || len(r.ByMinute) > 0:
		return Minutely
	case r.Freq == Hourly || len(r.ByHour) > 0:
		return Hourly
	case r.Freq == Daily || len(r.ByDay) > 0 || len(r.ByMonthDay) > 0 || len(r.ByYearDay) > 0:
		return Daily
	case r.Freq == Weekly || len(r.ByWeekNo) > 0:
		return Weekly
	case r.Freq == Monthly || len(r.ByMonth) > 0:
		return Monthly
	default:
		return Yearly
	}
}

// keepFrom returns the coarsest field that stays untouched while stepping by
// unit f. Those fields are restored from the previous candidate when Advance
// rolls into a new period.
func keepFrom(f Freq) field {
	switch f {
	case Secondly:
		return fieldNanos
	case Minutely:
		return fieldSecond
	case Hourly:
		return fieldMinute
	case Monthly:
		return fieldDay
	case Yearly:
		return fieldMonth
	default:
		return fieldHour
	}
}

// weekStart is the first day of week used for period boundaries and week
// numbers. WKST only matters for WEEKLY rules with INTERVAL > 1 and for
// BYWEEKNO; Monday, Sunday and Saturday starts are supported.
func (r *Rule) weekStart() time.Weekday {
	if (r.Freq == Weekly && r.Interval > 1) || len(r.ByWeekNo) > 0 {
		switch r.WeekStart {
		case time.Sunday, time.Saturday:
			return r.WeekStart
		}
	}
	return time.Monday
}

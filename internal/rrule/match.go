package rrule

import (
	"slices"
	"time"

	"icalevents/internal/caltime"
)

// Matches reports whether at belongs to the recurrence set: every populated
// BYxxx filter holds and, with BYSETPOS, at has a selected position among the
// filtered instants of its FREQ period.
func (r *Rule) Matches(at caltime.Instant) bool {
	if !r.MatchesFilters(at) {
		return false
	}
	if len(r.BySetPos) == 0 {
		return true
	}
	return r.matchesSetPos(at)
}

// MatchesFilters applies BYMONTH, BYWEEKNO, BYYEARDAY, BYMONTHDAY, BYDAY,
// BYHOUR, BYMINUTE and BYSECOND, in that order. BYSETPOS is ignored.
func (r *Rule) MatchesFilters(at caltime.Instant) bool {
	t := at.Time

	if len(r.ByMonth) > 0 && !slices.Contains(r.ByMonth, int(t.Month())) {
		return false
	}

	if len(r.ByWeekNo) > 0 && r.Freq == Yearly {
		week, weeks := weekNumber(t, r.weekStart())
		if !anySelects(r.ByWeekNo, week, weeks) {
			return false
		}
	}

	switch r.Freq {
	case Daily, Weekly, Monthly:
	default:
		if len(r.ByYearDay) > 0 && !anySelects(r.ByYearDay, t.YearDay(), caltime.DaysInYear(t.Year())) {
			return false
		}
	}

	if len(r.ByMonthDay) > 0 && r.Freq != Weekly {
		if !anySelects(r.ByMonthDay, t.Day(), caltime.DaysInMonth(t.Year(), t.Month())) {
			return false
		}
	}

	if len(r.ByDay) > 0 && !r.matchesByDay(t) {
		return false
	}

	if len(r.ByHour) > 0 && !slices.Contains(r.ByHour, t.Hour()) {
		return false
	}
	if len(r.ByMinute) > 0 && !slices.Contains(r.ByMinute, t.Minute()) {
		return false
	}
	if len(r.BySecond) > 0 && !slices.Contains(r.BySecond, t.Second()) {
		return false
	}
	return true
}

// anySelects reports whether a 1-based position out of total is selected by
// one of the values, negatives counting back from the end.
func anySelects(values []int, pos, total int) bool {
	for _, v := range values {
		if (v > 0 && v == pos) || (v < 0 && total+v+1 == pos) {
			return true
		}
	}
	return false
}

func (r *Rule) matchesByDay(t time.Time) bool {
	for _, wd := range r.ByDay {
		if t.Weekday() != wd.Day {
			continue
		}
		if wd.N == 0 {
			return true
		}

		// Ordinals count same-weekday days within the month or the year.
		var pos, total int
		switch r.Freq {
		case Monthly:
			pos, total = ordinalIn(t.Day(), caltime.DaysInMonth(t.Year(), t.Month()))
		case Yearly:
			pos, total = ordinalIn(t.YearDay(), caltime.DaysInYear(t.Year()))
		default:
			return true
		}
		if anySelects([]int{wd.N}, pos, total) {
			return true
		}
	}
	return false
}

// ordinalIn returns which same-weekday occurrence day is within a span of
// length days, and how many such occurrences the span holds.
func ordinalIn(day, length int) (pos, total int) {
	first := (day-1)%7 + 1
	return (day-1)/7 + 1, (length-first)/7 + 1
}

// matchesSetPos walks every instant of at's FREQ period with Advance, keeps
// those passing MatchesFilters and checks at's position in that list.
func (r *Rule) matchesSetPos(at caltime.Instant) bool {
	wkst := r.weekStart()
	periodStart := startOf(at.Time, r.Freq, wkst)
	periodEnd := addUnits(periodStart, r.Freq, 1)

	first, ok := anchor(periodStart, at.Time, r.advanceFreq())
	if !ok {
		return false
	}

	index, n := -1, 0
	cur := caltime.Instant{Time: first, DateOnly: at.DateOnly}
	for cur.Time.Before(periodEnd) {
		if r.MatchesFilters(cur) {
			if cur.Time.Equal(at.Time) {
				index = n
			}
			n++
		}
		next, err := r.Advance(cur)
		if err != nil {
			break
		}
		cur = next
	}
	if index < 0 {
		return false
	}

	for _, pos := range r.BySetPos {
		if (pos > 0 && pos == index+1) || (pos < 0 && n+pos == index) {
			return true
		}
	}
	return false
}

package rrule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"

	"icalevents/internal/caltime"
	appLog "icalevents/internal/log"
)

var byDayRe = regexp.MustCompile(`^([+-]?\d{1,2})?(MO|TU|WE|TH|FR|SA|SU)$`)

// Parse reads an RRULE value ("FREQ=...;...") or a whole "RRULE:..." line.
// Floating UNTIL values are placed in loc, normally the DTSTART zone.
//
// Unknown keys are logged and skipped. A malformed value for a known key or a
// missing FREQ yields a *caltime.ValidationError.
func Parse(text string, loc *time.Location) (*Rule, error) {
	if i := strings.Index(text, ":"); i >= 0 {
		text = text[i+1:]
	}

	r := &Rule{Interval: 1, WeekStart: time.Monday}
	hasFreq := false

	for _, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			appLog.Warn("rrule: ignoring part without value", "part", part)
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.ToUpper(strings.TrimSpace(value))

		var err error
		switch key {
		case "FREQ":
			f, known := parseFreq(value)
			if !known {
				err = fmt.Errorf("unknown frequency %q", value)
				break
			}
			r.Freq, hasFreq = f, true
		case "UNTIL":
			var until caltime.Instant
			if until, err = caltime.ParseInstant(value, loc); err == nil {
				r.Until = mo.Some(until)
			}
		case "COUNT":
			var n int
			if n, err = parseInt(value, 0, 1<<31-1, false); err == nil {
				r.Count = mo.Some(n)
			}
		case "INTERVAL":
			r.Interval, err = parseInt(value, 1, 1<<31-1, false)
		case "BYSECOND":
			r.BySecond, err = parseIntList(value, 0, 60, false)
		case "BYMINUTE":
			r.ByMinute, err = parseIntList(value, 0, 59, false)
		case "BYHOUR":
			r.ByHour, err = parseIntList(value, 0, 23, false)
		case "BYDAY":
			r.ByDay, err = parseByDay(value)
		case "BYMONTHDAY":
			r.ByMonthDay, err = parseIntList(value, 1, 31, true)
		case "BYYEARDAY":
			r.ByYearDay, err = parseIntList(value, 1, 366, true)
		case "BYWEEKNO":
			r.ByWeekNo, err = parseIntList(value, 1, 53, true)
		case "BYMONTH":
			r.ByMonth, err = parseIntList(value, 1, 12, false)
		case "BYSETPOS":
			r.BySetPos, err = parseIntList(value, 1, 366, true)
		case "WKST":
			d, known := weekdayCodes[value]
			if !known {
				err = fmt.Errorf("unknown weekday %q", value)
				break
			}
			r.WeekStart = d
		default:
			appLog.Warn("rrule: unknown key skipped", "key", key, "value", value)
		}
		if err != nil {
			return nil, &caltime.ValidationError{Field: "RRULE " + key, Reason: err.Error()}
		}
	}

	if !hasFreq {
		return nil, &caltime.ValidationError{Field: "RRULE FREQ", Reason: "missing"}
	}
	return r, nil
}

// parseInt accepts min..max, and -max..-min too when signed is set.
func parseInt(s string, min, max int, signed bool) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	abs := n
	if signed && n < 0 {
		abs = -n
	}
	if abs < min || abs > max {
		return 0, fmt.Errorf("%d out of range", n)
	}
	return n, nil
}

func parseIntList(s string, min, max int, signed bool) ([]int, error) {
	fields := strings.Split(s, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := parseInt(f, min, max, signed)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseByDay(s string) ([]WeekdayNum, error) {
	fields := strings.Split(s, ",")
	out := make([]WeekdayNum, 0, len(fields))
	for _, f := range fields {
		m := byDayRe.FindStringSubmatch(strings.TrimSpace(f))
		if m == nil {
			return nil, fmt.Errorf("bad weekday %q", f)
		}
		wd := WeekdayNum{Day: weekdayCodes[m[2]]}
		if m[1] != "" {
			n, err := parseInt(m[1], 1, 53, true)
			if err != nil {
				return nil, err
			}
			wd.N = n
		}
		out = append(out, wd)
	}
	return out, nil
}

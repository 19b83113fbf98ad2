package caltime

import (
	"strings"
	"time"
)

// Zones resolves the zone of floating date-times. It replaces any process-wide
// "local timezone" setting and is passed down explicitly.
type Zones struct {
	// Default applies to floating values without TZID. Nil means time.Local.
	Default *time.Location
}

// Resolve returns the location for a TZID parameter value, or the default
// zone when tzid is empty.
func (z Zones) Resolve(tzid string) (*time.Location, error) {
	tzid = strings.TrimPrefix(strings.Trim(strings.TrimSpace(tzid), `"`), "/")
	if tzid == "" {
		return z.Location(), nil
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return nil, formatErr("time zone", tzid, err.Error())
	}
	return loc, nil
}

// Location is the default zone.
func (z Zones) Location() *time.Location {
	if z.Default == nil {
		return time.Local
	}
	return z.Default
}

// ParseInstant parses one DATE or DATE-TIME token:
//
//	yyyyMMddThhmmssZ  UTC
//	yyyyMMddThhmmss   floating, placed in loc
//	yyyyMMdd          date-only, midnight UTC
func ParseInstant(token string, loc *time.Location) (Instant, error) {
	s := strings.ToUpper(strings.TrimSpace(token))
	if loc == nil {
		loc = time.Local
	}

	var (
		t   time.Time
		err error
	)
	switch {
	case len(s) == 16 && s[8] == 'T' && s[15] == 'Z' && allDigits(s[:8]+s[9:15]):
		t, err = time.Parse(layoutUTC, s)
	case len(s) == 15 && s[8] == 'T' && allDigits(s[:8]+s[9:]):
		t, err = time.ParseInLocation(layoutDateTime, s, loc)
	case len(s) == 8 && allDigits(s):
		t, err = time.ParseInLocation(layoutDate, s, time.UTC)
		if err == nil {
			return Instant{Time: t, DateOnly: true}, nil
		}
	default:
		return Instant{}, formatErr("date-time", token, "unknown form")
	}
	if err != nil {
		return Instant{}, formatErr("date-time", token, err.Error())
	}
	return Instant{Time: t}, nil
}

// ParseInstants parses every comma-separated value of a DTSTART, DTEND, RDATE
// or EXDATE property. All values share the line's zone.
func ParseInstants(p Property, zones Zones) ([]Instant, error) {
	loc, err := zones.Resolve(p.Param("TZID"))
	if err != nil {
		return nil, err
	}
	values := p.Values()
	if len(values) == 0 {
		return nil, formatErr("date-time", p.Value, "no value")
	}
	out := make([]Instant, 0, len(values))
	for _, v := range values {
		inst, err := ParseInstant(v, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// ParsePeriod parses "start/end" or "start/duration".
func ParsePeriod(token string, loc *time.Location) (Period, error) {
	startText, endText, ok := strings.Cut(strings.TrimSpace(token), "/")
	if !ok {
		return Period{}, formatErr("period", token, "missing '/'")
	}
	start, err := ParseInstant(startText, loc)
	if err != nil {
		return Period{}, err
	}

	var p Period
	endText = strings.ToUpper(strings.TrimSpace(endText))
	if strings.HasPrefix(endText, "P") || strings.HasPrefix(endText, "+P") {
		d, err := ParseDuration(endText)
		if err != nil {
			return Period{}, err
		}
		p = PeriodOf(start, d)
	} else {
		end, err := ParseInstant(endText, loc)
		if err != nil {
			return Period{}, err
		}
		p = Period{Start: start, End: end}
	}

	if !p.End.After(p.Start) {
		return Period{}, formatErr("period", token, "end must follow start")
	}
	return p, nil
}

// ParsePeriods parses every comma-separated value of an RDATE;VALUE=PERIOD
// property.
func ParsePeriods(p Property, zones Zones) ([]Period, error) {
	loc, err := zones.Resolve(p.Param("TZID"))
	if err != nil {
		return nil, err
	}
	values := p.Values()
	if len(values) == 0 {
		return nil, formatErr("period", p.Value, "no value")
	}
	out := make([]Period, 0, len(values))
	for _, v := range values {
		period, err := ParsePeriod(v, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, period)
	}
	return out, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

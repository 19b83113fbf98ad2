package caltime

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration is an ISO-8601 / RFC 5545 nominal duration. Calendar parts (years,
// months, weeks, days) move the wall clock; Clock is exact elapsed time.
type Duration struct {
	Negative bool
	Years    int
	Months   int
	Weeks    int
	Days     int
	Clock    time.Duration
}

// Exact wraps an elapsed duration, e.g. DTEND - DTSTART.
func Exact(d time.Duration) Duration {
	if d < 0 {
		return Duration{Negative: true, Clock: -d}
	}
	return Duration{Clock: d}
}

// maxDurationPart bounds a single component; a day count this large already
// spans more than the years 1..9999.
const maxDurationPart = 4_000_000

var durationRe = regexp.MustCompile(`^([+-])?P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration parses values such as "PT1H30M", "P1W", "-P2D" or "P1DT12H".
func ParseDuration(s string) (Duration, error) {
	text := strings.ToUpper(strings.TrimSpace(s))
	m := durationRe.FindStringSubmatch(text)
	if m == nil || strings.HasSuffix(text, "T") || strings.Join(m[2:], "") == "" {
		return Duration{}, formatErr("duration", s, "expected [+-]P[nY][nM][nW][nD][T[nH][nM][nS]]")
	}

	parts := make([]int64, len(m))
	for i := 2; i < len(m); i++ {
		if m[i] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i], 10, 64)
		if err != nil || n > maxDurationPart {
			return Duration{}, formatErr("duration", s, "component "+m[i]+" is out of range")
		}
		parts[i] = n
	}

	secs := parts[6]*3600 + parts[7]*60 + parts[8]
	if secs > int64(math.MaxInt64/time.Second) {
		return Duration{}, formatErr("duration", s, "time part overflows")
	}

	d := Duration{
		Negative: m[1] == "-",
		Years:    int(parts[2]),
		Months:   int(parts[3]),
		Weeks:    int(parts[4]),
		Days:     int(parts[5]),
		Clock:    time.Duration(secs) * time.Second,
	}
	return d, nil
}

func (d Duration) IsZero() bool {
	return d.Years == 0 && d.Months == 0 && d.Weeks == 0 && d.Days == 0 && d.Clock == 0
}

// AddTo applies d to t in t's location. Year and month steps clamp to the
// last day of the target month.
func (d Duration) AddTo(t time.Time) time.Time {
	sign := 1
	if d.Negative {
		sign = -1
	}
	if d.Years != 0 || d.Months != 0 {
		t = AddMonths(t, sign*(d.Years*12+d.Months))
	}
	if days := d.Weeks*7 + d.Days; days != 0 {
		t = AddDays(t, sign*days)
	}
	return t.Add(time.Duration(sign) * d.Clock)
}

// String renders d in ISO-8601 form.
func (d Duration) String() string {
	var b strings.Builder
	if d.Negative {
		b.WriteByte('-')
	}
	b.WriteByte('P')
	writePart := func(n int, unit byte) {
		if n != 0 {
			b.WriteString(strconv.Itoa(n))
			b.WriteByte(unit)
		}
	}
	writePart(d.Years, 'Y')
	writePart(d.Months, 'M')
	writePart(d.Weeks, 'W')
	writePart(d.Days, 'D')
	if d.Clock != 0 {
		b.WriteByte('T')
		rest := d.Clock
		h := rest / time.Hour
		rest -= h * time.Hour
		m := rest / time.Minute
		rest -= m * time.Minute
		writePart(int(h), 'H')
		writePart(int(m), 'M')
		if rest != 0 {
			b.WriteString(strconv.FormatFloat(rest.Seconds(), 'f', -1, 64))
			b.WriteByte('S')
		}
	}
	if b.Len() == 1 || (d.Negative && b.Len() == 2) {
		b.WriteString("T0S")
	}
	return b.String()
}

// AddDays moves t by n calendar days, keeping its wall-clock time.
func AddDays(t time.Time, n int) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day+n, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// AddMonths moves t by n months, clamping the day to the target month's length
// (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, day := t.Date()
	total := int(m) - 1 + n
	ty := y + floorDiv(total, 12)
	tm := time.Month(total - floorDiv(total, 12)*12 + 1)
	if dim := DaysInMonth(ty, tm); day > dim {
		day = dim
	}
	return time.Date(ty, tm, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DaysInMonth returns the number of days of the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysInYear returns 365 or 366.
func DaysInYear(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

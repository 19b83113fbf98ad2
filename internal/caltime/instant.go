package caltime

import "time"

const (
	layoutUTC      = "20060102T150405Z"
	layoutDateTime = "20060102T150405"
	layoutDate     = "20060102"
)

// Instant is a point in time together with the zone it was expressed in.
// DateOnly marks an all-day (VALUE=DATE) value; such instants sit at midnight
// UTC. Arithmetic keeps the flag only while the result stays on midnight.
type Instant struct {
	Time     time.Time
	DateOnly bool
}

// At wraps t as a date-time Instant.
func At(t time.Time) Instant {
	return Instant{Time: t}
}

// Date returns the date-only Instant for the given calendar day.
func Date(year int, month time.Month, day int) Instant {
	return Instant{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), DateOnly: true}
}

func (i Instant) IsZero() bool { return i.Time.IsZero() }

func (i Instant) Location() *time.Location { return i.Time.Location() }

func (i Instant) Before(o Instant) bool { return i.Time.Before(o.Time) }

func (i Instant) After(o Instant) bool { return i.Time.After(o.Time) }

// Same reports whether both values denote the same absolute instant,
// regardless of zone or DateOnly.
func (i Instant) Same(o Instant) bool { return i.Time.Equal(o.Time) }

// Equal is stricter than Same: zone name and DateOnly must match too.
func (i Instant) Equal(o Instant) bool {
	return i.Time.Equal(o.Time) &&
		i.DateOnly == o.DateOnly &&
		i.Time.Location().String() == o.Time.Location().String()
}

// Add adds an exact elapsed duration.
func (i Instant) Add(d time.Duration) Instant {
	return derived(i, i.Time.Add(d))
}

// AddDuration adds a nominal duration using wall-clock arithmetic in the
// receiver's zone.
func (i Instant) AddDuration(d Duration) Instant {
	return derived(i, d.AddTo(i.Time))
}

func derived(from Instant, t time.Time) Instant {
	h, m, s := t.Clock()
	return Instant{Time: t, DateOnly: from.DateOnly && h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0}
}

// Sub returns the exact elapsed time i - o.
func (i Instant) Sub(o Instant) time.Duration { return i.Time.Sub(o.Time) }

// Format renders the instant as an iCalendar value plus the TZID parameter
// needed to read it back ("" for UTC and date-only values).
func (i Instant) Format() (value, tzid string) {
	switch {
	case i.DateOnly:
		return i.Time.Format(layoutDate), ""
	case i.Time.Location() == time.UTC:
		return i.Time.Format(layoutUTC), ""
	default:
		return i.Time.Format(layoutDateTime), i.Time.Location().String()
	}
}

func (i Instant) String() string {
	if i.DateOnly {
		return i.Time.Format(time.DateOnly)
	}
	return i.Time.Format(time.RFC3339)
}

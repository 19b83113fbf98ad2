package ics

import (
	"errors"
	"slices"
	"time"

	"github.com/samber/mo"

	"icalevents/internal/caltime"
	appLog "icalevents/internal/log"
	"icalevents/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
	defaultMaxSteps               = 1_000_000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Range is the query window. Both ends are inclusive.
	Range caltime.Interval

	// IncludeDTStart emits DTSTART even when it does not satisfy the RRULE.
	IncludeDTStart bool

	// DisplayLocation is the zone timed occurrences are converted to.
	// If nil, time.Local is used.
	DisplayLocation *time.Location

	// MaxOccurrencesPerEvent caps the output of a single event. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int

	// MaxSteps bounds the number of Advance calls between two matches of an
	// event's rule. If zero, defaultMaxSteps is used.
	MaxSteps int
}

func (c ExpandConfig) withDefaults() ExpandConfig {
	if c.DisplayLocation == nil {
		c.DisplayLocation = time.Local
	}
	if c.MaxOccurrencesPerEvent <= 0 {
		c.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = defaultMaxSteps
	}
	return c
}

// ExpandResult wraps the expanded occurrences of several events.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandAll expands every source and returns the occurrences ordered by start.
func ExpandAll(sources []*RecurrenceSource, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if !cfg.Range.Valid() {
		return result, errors.New("expand: range end is before range start")
	}
	cfg = cfg.withDefaults()

	all := make([]model.Occurrence, 0)
	for _, src := range sources {
		occ, truncated := Expand(src, cfg)
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, src.UID)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", src.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		all = append(all, occ...)
	}

	slices.SortStableFunc(all, func(a, b model.Occurrence) int {
		return a.Start.Time.Compare(b.Start.Time)
	})
	result.Occurrences = all
	return result, nil
}

// Expand returns the occurrences of src inside cfg.Range, in generation
// order: DTSTART, then RRULE matches, then RDATEs. The bool reports whether
// MaxOccurrencesPerEvent cut the list short.
//
// COUNT is consumed by DTSTART and every rule match, including matches
// before the range, so a COUNT-bounded event yields the same instants
// whatever range is queried (RFC 5545 semantics, not "emitted so far").
// RDATEs never consume COUNT. An AdvanceError or an exhausted step budget
// ends the rule loop and keeps what was collected.
func Expand(src *RecurrenceSource, cfg ExpandConfig) ([]model.Occurrence, bool) {
	cfg = cfg.withDefaults()
	dtstart := src.DTStart
	if dtstart.IsZero() || cfg.Range.EndsBefore(dtstart.Time) {
		return nil, false
	}

	x := &expansion{src: src, cfg: cfg}
	r := src.Rule

	count := 0
	if !x.excluded(dtstart) && (cfg.IncludeDTStart || r == nil || r.Matches(dtstart)) {
		count++
		if cfg.Range.Contains(dtstart.Time) && !x.emit(dtstart, mo.None[caltime.Duration]()) {
			return x.out, true
		}
	}

	if r != nil {
		if !x.expandRule(count) {
			return x.out, true
		}
	}

	for _, rd := range src.RDates {
		var (
			start  caltime.Instant
			period mo.Option[caltime.Duration]
		)
		if p, ok := rd.Right(); ok {
			start, period = p.Start, mo.Some(p.Duration())
		} else {
			start = rd.MustLeft()
		}
		if !cfg.Range.Contains(start.Time) || x.excluded(start) || x.emitted(start) {
			continue
		}
		if !x.emit(start, period) {
			return x.out, true
		}
	}
	return x.out, false
}

type expansion struct {
	src *RecurrenceSource
	cfg ExpandConfig
	out []model.Occurrence
}

// expandRule runs the rule loop. count is the number of occurrences already
// consumed. It returns false when the output cap was hit.
//
// Without COUNT the loop jumps straight to the rule period holding the range
// start. With COUNT it walks from DTSTART so that earlier matches are
// counted. MaxSteps bounds the Advance calls between two matches.
func (x *expansion) expandRule(count int) bool {
	r := x.src.Rule
	limit, counted := r.Count.Get()
	until, bounded := r.Until.Get()

	cur := x.src.DTStart
	pending := false
	if !counted {
		if skipped := r.SkipTo(cur, x.cfg.Range.Start); skipped.After(cur) {
			cur, pending = skipped, true
		}
	}

	idle := 0
	for !counted || count < limit {
		if pending {
			pending = false
		} else {
			if idle >= x.cfg.MaxSteps {
				appLog.Warn("expand: step budget exhausted", "uid", x.src.UID, "steps", idle, "at", cur.String())
				return true
			}
			idle++

			next, err := r.Advance(cur)
			if err != nil {
				appLog.Error("expand: rule advance stopped", err, "uid", x.src.UID, "rrule", r.String())
				return true
			}
			cur = next
		}

		if bounded && cur.After(until) {
			return true
		}
		if x.cfg.Range.EndsBefore(cur.Time) {
			return true
		}
		// Only COUNT needs matches before the range.
		if !counted && cur.Time.Before(x.cfg.Range.Start) {
			continue
		}
		if x.excluded(cur) || !r.Matches(cur) {
			continue
		}
		idle = 0
		count++
		if x.cfg.Range.Contains(cur.Time) && !x.emit(cur, mo.None[caltime.Duration]()) {
			return false
		}
	}
	return true
}

// excluded reports an exact EXDATE match.
func (x *expansion) excluded(at caltime.Instant) bool {
	return slices.ContainsFunc(x.src.ExDates, func(ex caltime.Instant) bool {
		return ex.Time.Equal(at.Time)
	})
}

func (x *expansion) emitted(at caltime.Instant) bool {
	return slices.ContainsFunc(x.out, func(o model.Occurrence) bool {
		return o.InstanceKey == instanceKey(at)
	})
}

// emit appends one occurrence and returns false once the cap is reached.
func (x *expansion) emit(start caltime.Instant, period mo.Option[caltime.Duration]) bool {
	if len(x.out) >= x.cfg.MaxOccurrencesPerEvent {
		return false
	}
	end := x.endFor(start, period)
	src := x.src

	occ := model.Occurrence{
		SourceID:     src.Feed.ID,
		UID:          src.UID,
		InstanceKey:  instanceKey(start),
		Summary:      src.Summary,
		Description:  src.Description,
		Location:     src.Location,
		Transparency: src.Transparency,
		AllDay:       src.DTStart.DateOnly,
		Start:        x.display(start),
		End:          x.display(end),
	}
	x.out = append(x.out, occ)
	return true
}

// endFor picks the end of an occurrence: an RDATE period's own length, then
// DTEND-DTSTART, then DURATION, then one day for dates and 1ms otherwise.
func (x *expansion) endFor(start caltime.Instant, period mo.Option[caltime.Duration]) caltime.Instant {
	candidates := []mo.Option[caltime.Duration]{period}
	if end, ok := x.src.DTEnd.Get(); ok {
		candidates = append(candidates, mo.Some(caltime.Exact(end.Sub(x.src.DTStart))))
	}
	candidates = append(candidates, x.src.Duration)

	for _, c := range candidates {
		if d, ok := c.Get(); ok {
			if end := start.AddDuration(d); end.After(start) {
				return end
			}
		}
	}
	if start.DateOnly {
		return caltime.Instant{Time: caltime.AddDays(start.Time, 1), DateOnly: true}
	}
	return start.Add(time.Millisecond)
}

func (x *expansion) display(at caltime.Instant) caltime.Instant {
	if at.DateOnly {
		return at
	}
	return caltime.Instant{Time: at.Time.In(x.cfg.DisplayLocation)}
}

func instanceKey(at caltime.Instant) string {
	if at.DateOnly {
		return at.Time.Format("20060102")
	}
	return at.Time.UTC().Format("20060102T150405Z")
}

package ics

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"icalevents/internal/caltime"
	"icalevents/internal/rrule"
)

// RDate is one RDATE value: a single instant (left) or a period (right).
type RDate = mo.Either[caltime.Instant, caltime.Period]

// RecurrenceSource is everything expansion needs from one VEVENT.
type RecurrenceSource struct {
	Feed Source

	UID          string
	Summary      string
	Description  string
	Location     string
	Transparency string

	DTStart  caltime.Instant
	DTEnd    mo.Option[caltime.Instant]
	Duration mo.Option[caltime.Duration]

	// Rule is nil for events without an RRULE.
	Rule    *rrule.Rule
	RDates  []RDate
	ExDates []caltime.Instant
}

// BuildSource reads the properties of one VEVENT.
//
// Properties that fail to parse are skipped and reported in diags. A missing
// DTSTART or an unusable RRULE is returned as err and the event should be
// dropped.
func BuildSource(feed Source, props []caltime.Property, zones caltime.Zones) (src *RecurrenceSource, diags []error, err error) {
	src = &RecurrenceSource{Feed: feed}
	var (
		ruleText string
		hasRule  bool
	)

	skip := func(p caltime.Property, err error) {
		diags = append(diags, fmt.Errorf("%s: %w", p.Name, err))
	}

	for _, p := range props {
		switch p.Name {
		case "DTSTART":
			vs, err := caltime.ParseInstants(p, zones)
			if err != nil {
				skip(p, err)
				continue
			}
			src.DTStart = vs[0]
		case "DTEND":
			vs, err := caltime.ParseInstants(p, zones)
			if err != nil {
				skip(p, err)
				continue
			}
			src.DTEnd = mo.Some(vs[0])
		case "DURATION":
			d, err := caltime.ParseDuration(p.Value)
			if err != nil {
				skip(p, err)
				continue
			}
			src.Duration = mo.Some(d)
		case "RRULE":
			if hasRule {
				skip(p, &caltime.FormatError{Kind: "property", Value: p.Value, Reason: "only the first RRULE is used"})
				continue
			}
			ruleText, hasRule = p.Value, true
		case "RDATE":
			if p.HasParam("VALUE", "PERIOD") {
				periods, err := caltime.ParsePeriods(p, zones)
				if err != nil {
					skip(p, err)
					continue
				}
				for _, period := range periods {
					src.RDates = append(src.RDates, mo.Right[caltime.Instant](period))
				}
				continue
			}
			vs, err := caltime.ParseInstants(p, zones)
			if err != nil {
				skip(p, err)
				continue
			}
			for _, v := range vs {
				src.RDates = append(src.RDates, mo.Left[caltime.Instant, caltime.Period](v))
			}
		case "EXDATE":
			vs, err := caltime.ParseInstants(p, zones)
			if err != nil {
				skip(p, err)
				continue
			}
			src.ExDates = append(src.ExDates, vs...)
		case "UID":
			src.UID = strings.TrimSpace(p.Value)
		case "SUMMARY":
			src.Summary = unescapeText(p.Value)
		case "DESCRIPTION":
			src.Description = unescapeText(p.Value)
		case "LOCATION":
			src.Location = unescapeText(p.Value)
		case "TRANSP":
			src.Transparency = strings.ToUpper(strings.TrimSpace(p.Value))
		}
	}

	if src.UID == "" {
		src.UID = uuid.NewString()
	}
	if src.DTStart.IsZero() {
		return nil, diags, &caltime.ValidationError{Field: "DTSTART", Reason: "missing"}
	}
	if end, ok := src.DTEnd.Get(); ok && !end.After(src.DTStart) {
		diags = append(diags, fmt.Errorf("DTEND: %w", &caltime.FormatError{Kind: "date-time", Value: end.String(), Reason: "not after DTSTART"}))
		src.DTEnd = mo.None[caltime.Instant]()
	}
	if hasRule {
		r, err := rrule.Parse(ruleText, src.DTStart.Location())
		if err != nil {
			return nil, diags, err
		}
		src.Rule = r
	}
	return src, diags, nil
}

// SourceFromLines splits unfolded VEVENT content lines with caltime.ParseLine
// and builds the source. Lines that cannot be split are reported in diags.
func SourceFromLines(feed Source, lines []string, zones caltime.Zones) (*RecurrenceSource, []error, error) {
	props := make([]caltime.Property, 0, len(lines))
	var diags []error
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, err := caltime.ParseLine(line)
		if err != nil {
			diags = append(diags, err)
			continue
		}
		props = append(props, p)
	}
	src, more, err := BuildSource(feed, props, zones)
	return src, append(diags, more...), err
}

var textUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";")

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}

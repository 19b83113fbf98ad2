package ics

import (
	"bytes"
	"errors"
	"strings"

	ical "github.com/arran4/golang-ical"

	"icalevents/internal/caltime"
	appLog "icalevents/internal/log"
)

// ParseICS parses one VCALENDAR payload into recurrence sources.
//
//   - VCALENDAR/VEVENT splitting and line unfolding are done by golang-ical.
//   - Each VEVENT's properties are then read by BuildSource, so TZID and
//     floating values resolve through zones rather than the library.
//   - Events without DTSTART or with a broken RRULE are logged and skipped;
//     the rest of the calendar is still returned.
func ParseICS(feed Source, body []byte, zones caltime.Zones) ([]*RecurrenceSource, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", feed.ID, "url", redactURL(feed.URL))
		return nil, err
	}

	events := cal.Events()
	out := make([]*RecurrenceSource, 0, len(events))

	for _, ve := range events {
		src, diags, err := BuildSource(feed, vEventProperties(ve), zones)
		for _, d := range diags {
			appLog.Warn("ics property skipped", "id", feed.ID, "uid", vEventUID(ve), "err", d.Error())
		}
		if err != nil {
			appLog.Error("ics vevent skipped", err, "id", feed.ID, "uid", vEventUID(ve))
			continue
		}
		out = append(out, src)
	}

	appLog.Info("ics parse completed", "id", feed.ID, "url", redactURL(feed.URL), "event_count", len(out))
	return out, nil
}

// vEventProperties converts golang-ical properties to caltime properties,
// upper-casing names and parameter keys.
func vEventProperties(ve *ical.VEvent) []caltime.Property {
	props := make([]caltime.Property, 0, len(ve.Properties))
	for _, p := range ve.Properties {
		params := make(map[string][]string, len(p.ICalParameters))
		for k, vs := range p.ICalParameters {
			key := strings.ToUpper(k)
			params[key] = append(params[key], vs...)
		}
		props = append(props, caltime.Property{
			Name:   strings.ToUpper(p.IANAToken),
			Params: params,
			Value:  p.Value,
		})
	}
	return props
}

func vEventUID(ve *ical.VEvent) string {
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		return p.Value
	}
	return ""
}

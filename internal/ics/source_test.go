package ics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalevents/internal/caltime"
)

var utcZones = caltime.Zones{Default: time.UTC}

func mustSource(t *testing.T, lines ...string) *RecurrenceSource {
	t.Helper()
	src, diags, err := SourceFromLines(Source{ID: "test"}, lines, utcZones)
	require.NoError(t, err)
	require.Empty(t, diags)
	return src
}

func TestBuildSource_Properties(t *testing.T) {
	src := mustSource(t,
		"UID:abc@example.com",
		`SUMMARY:Lunch\, then review\nbring notes`,
		"LOCATION:Room 4",
		"TRANSP:transparent",
		"DTSTART;TZID=America/New_York:19970805T090000",
		"DTEND;TZID=America/New_York:19970805T100000",
		"RRULE:FREQ=WEEKLY;COUNT=4;UNTIL=19971224T000000",
		"RDATE:19970901T090000Z,19970902T090000Z",
		"RDATE;VALUE=PERIOD:19970903T090000Z/PT2H",
		"EXDATE;TZID=America/New_York:19970812T090000",
	)

	assert.Equal(t, "abc@example.com", src.UID)
	assert.Equal(t, "Lunch, then review\nbring notes", src.Summary)
	assert.Equal(t, "Room 4", src.Location)
	assert.Equal(t, "TRANSPARENT", src.Transparency)
	assert.Equal(t, "America/New_York", src.DTStart.Location().String())
	assert.True(t, src.DTEnd.IsPresent())

	require.NotNil(t, src.Rule)
	until := src.Rule.Until.MustGet()
	assert.Equal(t, "America/New_York", until.Location().String(), "floating UNTIL takes the DTSTART zone")

	require.Len(t, src.RDates, 3)
	assert.True(t, src.RDates[0].IsLeft())
	assert.True(t, src.RDates[2].IsRight())
	period := src.RDates[2].MustRight()
	assert.Equal(t, 2*time.Hour, period.End.Sub(period.Start))

	require.Len(t, src.ExDates, 1)
	assert.Equal(t, 12, src.ExDates[0].Time.Day())
}

func TestBuildSource_GeneratesMissingUID(t *testing.T) {
	a := mustSource(t, "DTSTART:20240101T100000Z")
	b := mustSource(t, "DTSTART:20240101T100000Z")

	assert.NotEmpty(t, a.UID)
	assert.NotEqual(t, a.UID, b.UID)
}

func TestBuildSource_Rejects(t *testing.T) {
	tests := map[string][]string{
		"missing dtstart": {"UID:x", "RRULE:FREQ=DAILY"},
		"rrule without freq": {"DTSTART:20240101T100000Z", "RRULE:COUNT=3"},
		"rrule bad interval": {"DTSTART:20240101T100000Z", "RRULE:FREQ=DAILY;INTERVAL=0"},
		"unparseable dtstart": {"DTSTART:2024-01-01"},
	}
	for name, lines := range tests {
		t.Run(name, func(t *testing.T) {
			src, _, err := SourceFromLines(Source{}, lines, utcZones)
			assert.Nil(t, src)

			var ve *caltime.ValidationError
			assert.True(t, errors.As(err, &ve), "err = %v", err)
		})
	}
}

func TestBuildSource_SkipsBadProperties(t *testing.T) {
	src, diags, err := SourceFromLines(Source{}, []string{
		"DTSTART:20240101T100000Z",
		"DTEND:20240101T090000Z",
		"EXDATE:not-a-date",
		"RDATE;VALUE=PERIOD:20240105T100000Z/20240105T090000Z",
		"DURATION:P1X",
		"DTSTART;TZID=Mars/Olympus:20240101T100000",
		"garbage without colon",
	}, utcZones)
	require.NoError(t, err)

	assert.Len(t, diags, 6)
	for _, d := range diags {
		var fe *caltime.FormatError
		assert.True(t, errors.As(d, &fe), "diag = %v", d)
	}
	assert.True(t, src.DTEnd.IsAbsent(), "DTEND before DTSTART is dropped")
	assert.Empty(t, src.ExDates)
	assert.Empty(t, src.RDates)
	assert.True(t, src.Duration.IsAbsent())
	assert.True(t, src.DTStart.Time.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
}

func TestBuildSource_FloatingUsesDefaultZone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	src, _, err := SourceFromLines(Source{}, []string{"DTSTART:20240101T100000"}, caltime.Zones{Default: tokyo})
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", src.DTStart.Location().String())
	assert.Equal(t, 1, src.DTStart.Time.UTC().Hour())
}

package rrule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icalevents/internal/caltime"
)

func mustParse(t *testing.T, text string) *Rule {
	t.Helper()
	r, err := Parse(text, time.UTC)
	require.NoError(t, err)
	return r
}

// firstN walks the rule from start and returns the first n matching instants
// formatted with layout.
func firstN(t *testing.T, r *Rule, start caltime.Instant, n int, layout string) []string {
	t.Helper()
	var out []string
	cur := start
	if r.Matches(cur) {
		out = append(out, cur.Time.Format(layout))
	}
	for i := 0; len(out) < n && i < 100000; i++ {
		next, err := r.Advance(cur)
		require.NoError(t, err)
		cur = next
		if r.Matches(cur) {
			out = append(out, cur.Time.Format(layout))
		}
	}
	return out
}

func TestParse_Fields(t *testing.T) {
	r := mustParse(t, "RRULE:FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=TU,-1SU,+2FR;WKST=SU;UNTIL=19971224T000000Z;BYHOUR=9,17;BYSETPOS=-1")

	assert.Equal(t, Weekly, r.Freq)
	assert.Equal(t, 2, r.Interval)
	assert.Equal(t, 4, r.Count.MustGet())
	assert.Equal(t, time.Sunday, r.WeekStart)
	assert.Equal(t, []WeekdayNum{{Day: time.Tuesday}, {N: -1, Day: time.Sunday}, {N: 2, Day: time.Friday}}, r.ByDay)
	assert.Equal(t, []int{9, 17}, r.ByHour)
	assert.Equal(t, []int{-1}, r.BySetPos)

	until, ok := r.Until.Get()
	require.True(t, ok)
	assert.True(t, until.Time.Equal(time.Date(1997, 12, 24, 0, 0, 0, 0, time.UTC)))
}

func TestParse_Defaults(t *testing.T) {
	r := mustParse(t, "FREQ=DAILY")

	assert.Equal(t, 1, r.Interval)
	assert.Equal(t, time.Monday, r.WeekStart)
	assert.True(t, r.Count.IsAbsent())
	assert.True(t, r.Until.IsAbsent())
}

func TestParse_FloatingUntilUsesGivenZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	r, err := Parse("FREQ=DAILY;UNTIL=19971224T090000", ny)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", r.Until.MustGet().Location().String())
}

func TestParse_UnknownKeyIsSkipped(t *testing.T) {
	r, err := Parse("FREQ=MONTHLY;X-NAME=whatever;BYMONTHDAY=-1", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []int{-1}, r.ByMonthDay)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"missing freq":      "INTERVAL=2;BYDAY=MO",
		"unknown freq":      "FREQ=FORTNIGHTLY",
		"bad count":         "FREQ=DAILY;COUNT=abc",
		"zero interval":     "FREQ=DAILY;INTERVAL=0",
		"month out of":      "FREQ=YEARLY;BYMONTH=13",
		"zero monthday":     "FREQ=MONTHLY;BYMONTHDAY=0",
		"hour out of range": "FREQ=DAILY;BYHOUR=24",
		"bad weekday":       "FREQ=WEEKLY;BYDAY=XX",
		"zero ordinal":      "FREQ=MONTHLY;BYDAY=0MO",
		"bad wkst":          "FREQ=WEEKLY;WKST=MONDAY",
		"bad until":         "FREQ=DAILY;UNTIL=1997-12-24",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(text, time.UTC)
			var ve *caltime.ValidationError
			require.True(t, errors.As(err, &ve), "err = %v", err)
		})
	}
}

func TestRule_String(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FREQ=MONTHLY;COUNT=6;BYDAY=-2MO", "FREQ=MONTHLY;COUNT=6;BYDAY=-2MO"},
		{"FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=TU,SU;WKST=SU", "FREQ=WEEKLY;COUNT=4;INTERVAL=2;BYDAY=TU,SU;WKST=SU"},
		{"FREQ=YEARLY;UNTIL=20000131;BYMONTH=1", "FREQ=YEARLY;UNTIL=20000131;BYMONTH=1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r := mustParse(t, tt.in)
			assert.Equal(t, tt.want, r.String())

			again := mustParse(t, r.String())
			assert.Equal(t, r, again)
		})
	}
}

func TestWeeklyIntervalDependsOnWeekStart(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := caltime.At(time.Date(1997, 8, 5, 9, 0, 0, 0, ny))

	mo := mustParse(t, "FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=TU,SU;WKST=MO")
	assert.Equal(t, []string{"08-05", "08-10", "08-19", "08-24"}, firstN(t, mo, start, 4, "01-02"))

	su := mustParse(t, "FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=TU,SU;WKST=SU")
	assert.Equal(t, []string{"08-05", "08-17", "08-19", "08-31"}, firstN(t, su, start, 4, "01-02"))
}

func TestRuleExamples(t *testing.T) {
	tests := []struct {
		name  string
		rule  string
		start time.Time
		want  []string
	}{
		{
			name:  "every other week MO WE FR with sunday week start",
			rule:  "FREQ=WEEKLY;INTERVAL=2;WKST=SU;BYDAY=MO,WE,FR",
			start: time.Date(1997, 9, 1, 9, 0, 0, 0, time.UTC),
			want:  []string{"1997-09-01", "1997-09-03", "1997-09-05", "1997-09-15", "1997-09-17", "1997-09-19", "1997-09-29", "1997-10-01"},
		},
		{
			name:  "second to last monday",
			rule:  "FREQ=MONTHLY;BYDAY=-2MO",
			start: time.Date(1997, 9, 22, 9, 0, 0, 0, time.UTC),
			want:  []string{"1997-09-22", "1997-10-20", "1997-11-17", "1997-12-22", "1998-01-19", "1998-02-16"},
		},
		{
			name:  "third of tue wed thu",
			rule:  "FREQ=MONTHLY;BYDAY=TU,WE,TH;BYSETPOS=3",
			start: time.Date(1997, 9, 4, 9, 0, 0, 0, time.UTC),
			want:  []string{"1997-09-04", "1997-10-07", "1997-11-06"},
		},
		{
			name:  "last weekday of the month",
			rule:  "FREQ=MONTHLY;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=-1",
			start: time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC),
			want:  []string{"2024-01-31", "2024-02-29", "2024-03-29", "2024-04-30", "2024-05-31"},
		},
		{
			name:  "monday of week number 20",
			rule:  "FREQ=YEARLY;BYWEEKNO=20;BYDAY=MO",
			start: time.Date(1997, 5, 12, 9, 0, 0, 0, time.UTC),
			want:  []string{"1997-05-12", "1998-05-11", "1999-05-17"},
		},
		{
			name:  "twentieth monday of the year",
			rule:  "FREQ=YEARLY;BYDAY=20MO",
			start: time.Date(1997, 5, 19, 9, 0, 0, 0, time.UTC),
			want:  []string{"1997-05-19", "1998-05-18", "1999-05-17"},
		},
		{
			name:  "monthly on the 31st skips short months",
			rule:  "FREQ=MONTHLY",
			start: time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC),
			want:  []string{"2024-01-31", "2024-03-31", "2024-05-31", "2024-07-31"},
		},
		{
			name:  "leap day yearly",
			rule:  "FREQ=YEARLY",
			start: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			want:  []string{"2024-02-29", "2028-02-29", "2032-02-29"},
		},
		{
			name:  "last day of the month",
			rule:  "FREQ=MONTHLY;BYMONTHDAY=-1",
			start: time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC),
			want:  []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"},
		},
		{
			name:  "yearly in march and june",
			rule:  "FREQ=YEARLY;BYMONTH=3,6",
			start: time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC),
			want:  []string{"2024-03-15", "2024-06-15", "2025-03-15", "2025-06-15"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustParse(t, tt.rule)
			got := firstN(t, r, caltime.At(tt.start), len(tt.want), time.DateOnly)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDailyByHourKeepsEveryDay(t *testing.T) {
	r := mustParse(t, "FREQ=DAILY;BYHOUR=9,17")
	start := caltime.At(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	got := firstN(t, r, start, 4, "01-02 15:04")
	assert.Equal(t, []string{"01-01 09:00", "01-01 17:00", "01-02 09:00", "01-02 17:00"}, got)
}

func TestMatchesFilters(t *testing.T) {
	day := func(y int, m time.Month, d int) caltime.Instant {
		return caltime.At(time.Date(y, m, d, 9, 30, 15, 0, time.UTC))
	}

	tests := []struct {
		name string
		rule string
		at   caltime.Instant
		want bool
	}{
		{"bymonth hit", "FREQ=DAILY;BYMONTH=1,3", day(2024, 3, 5), true},
		{"bymonth miss", "FREQ=DAILY;BYMONTH=1,3", day(2024, 2, 5), false},
		{"negative yearday", "FREQ=YEARLY;BYYEARDAY=-1", day(2024, 12, 31), true},
		{"negative yearday miss", "FREQ=YEARLY;BYYEARDAY=-1", day(2024, 12, 30), false},
		{"yearday ignored for daily", "FREQ=DAILY;BYYEARDAY=1", day(2024, 6, 1), true},
		{"negative weekno", "FREQ=YEARLY;BYWEEKNO=-1", day(1997, 12, 22), true},
		{"negative weekno miss", "FREQ=YEARLY;BYWEEKNO=-1", day(1997, 12, 15), false},
		{"weekno ignored unless yearly", "FREQ=MONTHLY;BYWEEKNO=1", day(2024, 6, 3), true},
		{"monthday ignored for weekly", "FREQ=WEEKLY;BYMONTHDAY=1", day(2024, 6, 3), true},
		{"ordinal in month", "FREQ=MONTHLY;BYDAY=2FR", day(2024, 1, 12), true},
		{"ordinal in month miss", "FREQ=MONTHLY;BYDAY=2FR", day(2024, 1, 19), false},
		{"last sunday", "FREQ=MONTHLY;BYDAY=-1SU", day(2024, 1, 28), true},
		{"last monday of year", "FREQ=YEARLY;BYDAY=-1MO", day(2024, 12, 30), true},
		{"first monday of year", "FREQ=YEARLY;BYDAY=1MO", day(2024, 1, 1), true},
		{"ordinal ignored for weekly", "FREQ=WEEKLY;BYDAY=3FR", day(2024, 1, 5), true},
		{"wrong weekday", "FREQ=WEEKLY;BYDAY=MO", day(2024, 1, 5), false},
		{"time filters", "FREQ=DAILY;BYHOUR=9;BYMINUTE=30;BYSECOND=15", day(2024, 1, 5), true},
		{"second miss", "FREQ=DAILY;BYSECOND=0", day(2024, 1, 5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustParse(t, tt.rule)
			assert.Equal(t, tt.want, r.MatchesFilters(tt.at))
		})
	}
}

func TestMatches_SetPosIsExtraStep(t *testing.T) {
	r := mustParse(t, "FREQ=MONTHLY;BYDAY=MO,TU,WE,TH,FR;BYSETPOS=-1")
	tue := caltime.At(time.Date(2024, 1, 30, 10, 0, 0, 0, time.UTC))

	assert.True(t, r.MatchesFilters(tue))
	assert.False(t, r.Matches(tue))
}

func TestAdvance_StrictlyIncreasing(t *testing.T) {
	rules := []string{
		"FREQ=SECONDLY;INTERVAL=7",
		"FREQ=MINUTELY;BYSECOND=0,30",
		"FREQ=HOURLY;INTERVAL=3;BYMINUTE=15",
		"FREQ=DAILY;BYHOUR=9,17",
		"FREQ=WEEKLY;INTERVAL=3;BYDAY=SA,SU;WKST=SA",
		"FREQ=MONTHLY;BYMONTHDAY=31",
		"FREQ=MONTHLY;INTERVAL=5",
		"FREQ=YEARLY;BYWEEKNO=1,52",
		"FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=29",
		"FREQ=YEARLY;INTERVAL=2",
	}
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	starts := []caltime.Instant{
		caltime.At(time.Date(2024, 1, 31, 1, 30, 0, 0, ny)),
		caltime.Date(2023, time.December, 31),
	}

	for _, text := range rules {
		for _, start := range starts {
			t.Run(text+"/"+start.String(), func(t *testing.T) {
				r := mustParse(t, text)
				cur := start
				for i := 0; i < 300; i++ {
					next, err := r.Advance(cur)
					require.NoError(t, err)
					require.True(t, next.After(cur), "%s is not after %s", next, cur)
					require.Equal(t, start.DateOnly, next.DateOnly)
					cur = next
				}
			})
		}
	}
}

func TestAdvance_PastYear9999(t *testing.T) {
	r := mustParse(t, "FREQ=YEARLY")
	_, err := r.Advance(caltime.At(time.Date(9999, 3, 1, 0, 0, 0, 0, time.UTC)))

	var ae *caltime.AdvanceError
	assert.True(t, errors.As(err, &ae))
}

func TestWeekNumber(t *testing.T) {
	tests := []struct {
		name      string
		date      time.Time
		wkst      time.Weekday
		wantWeek  int
		wantWeeks int
	}{
		{"iso week 53 of 2020", time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC), time.Monday, 53, 53},
		{"sunday start puts it in week 1", time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC), time.Sunday, 1, 52},
		{"iso week 20 of 1997", time.Date(1997, 5, 12, 0, 0, 0, 0, time.UTC), time.Monday, 20, 52},
		{"late december belongs to next year", time.Date(1997, 12, 29, 0, 0, 0, 0, time.UTC), time.Monday, 1, 53},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			week, weeks := weekNumber(tt.date, tt.wkst)
			assert.Equal(t, tt.wantWeek, week)
			assert.Equal(t, tt.wantWeeks, weeks)
		})
	}
}

func TestWeekStartFallsBackToMonday(t *testing.T) {
	assert.Equal(t, time.Monday, mustParse(t, "FREQ=WEEKLY;INTERVAL=2;WKST=WE").weekStart())
	assert.Equal(t, time.Saturday, mustParse(t, "FREQ=WEEKLY;INTERVAL=2;WKST=SA").weekStart())
	assert.Equal(t, time.Monday, mustParse(t, "FREQ=WEEKLY;WKST=SU").weekStart())
	assert.Equal(t, time.Sunday, mustParse(t, "FREQ=YEARLY;BYWEEKNO=1;WKST=SU").weekStart())
}

func TestSkipTo_LandsOnWalkedCandidate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	day := 24 * time.Hour

	tests := []struct {
		rule  string
		ahead time.Duration
	}{
		{"FREQ=SECONDLY;INTERVAL=7", 3 * time.Hour},
		{"FREQ=MINUTELY;INTERVAL=7", 3 * day},
		{"FREQ=HOURLY;INTERVAL=5;BYMINUTE=10,40", 20 * day},
		{"FREQ=DAILY;BYHOUR=9;BYMINUTE=0,30", 60 * day},
		{"FREQ=DAILY;INTERVAL=3", 400 * day},
		{"FREQ=WEEKLY;INTERVAL=2", 400 * day},
		{"FREQ=WEEKLY;INTERVAL=3;BYDAY=SA,SU;WKST=SA", 400 * day},
		{"FREQ=MONTHLY;INTERVAL=5", 5 * 365 * day},
		{"FREQ=MONTHLY;BYDAY=-1FR", 3 * 365 * day},
		{"FREQ=YEARLY;BYWEEKNO=1,52", 5 * 365 * day},
		{"FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=29", 9 * 365 * day},
		{"FREQ=YEARLY;INTERVAL=2", 9 * 365 * day},
	}
	starts := []caltime.Instant{
		caltime.At(time.Date(2020, 1, 31, 9, 30, 0, 0, ny)),
		caltime.Date(2019, time.December, 31),
	}

	for _, tt := range tests {
		for _, start := range starts {
			t.Run(tt.rule+"/"+start.String(), func(t *testing.T) {
				r := mustParse(t, tt.rule)
				target := start.Time.Add(tt.ahead)

				skipped := r.SkipTo(start, target)
				require.True(t, skipped.After(start), "nothing skipped")
				assert.Equal(t, start.DateOnly, skipped.DateOnly)

				var firstAtTarget caltime.Instant
				found := false
				cur := start
				for i := 0; firstAtTarget.IsZero() || cur.Before(skipped); i++ {
					require.Less(t, i, 1_000_000)
					cur, err = r.Advance(cur)
					require.NoError(t, err)
					if cur.Same(skipped) {
						found = true
					}
					if firstAtTarget.IsZero() && !cur.Time.Before(target) {
						firstAtTarget = cur
					}
				}
				assert.True(t, found, "%s is not a walked candidate", skipped)
				assert.False(t, firstAtTarget.Before(skipped), "skipped past %s", firstAtTarget)
			})
		}
	}
}

func TestSkipTo_NothingToSkip(t *testing.T) {
	start := caltime.At(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))

	r := mustParse(t, "FREQ=DAILY")
	assert.Equal(t, start, r.SkipTo(start, start.Time.Add(-time.Hour)))
	assert.Equal(t, start, r.SkipTo(start, start.Time.Add(time.Hour)))

	weekly := mustParse(t, "FREQ=WEEKLY;INTERVAL=4;BYDAY=MO")
	assert.Equal(t, start, weekly.SkipTo(start, start.Time.Add(14*24*time.Hour)))
}

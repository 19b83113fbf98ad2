package model

import "icalevents/internal/caltime"

// Occurrence is a single concrete instance of an event after recurrence
// expansion. End is always strictly after Start.
type Occurrence struct {
	SourceID string // feed ID from the config
	UID      string // iCalendar UID

	// InstanceKey identifies one occurrence of a recurring event. It is the
	// RECURRENCE-ID style UTC (or date) form of the unconverted start.
	InstanceKey string

	Summary      string
	Description  string
	Location     string
	Transparency string

	AllDay bool

	// Timed occurrences are in the display zone; all-day ones stay date-only.
	Start caltime.Instant
	End   caltime.Instant
}

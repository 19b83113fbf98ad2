package caltime

import (
	"fmt"
	"time"
)

// FormatError reports a date, period, duration or property token that could
// not be parsed. Callers skip the offending property (or event) and go on.
type FormatError struct {
	Kind   string // "date-time", "period", "duration", "property", ...
	Value  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s %q", e.Kind, e.Value)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Value, e.Reason)
}

// ValidationError reports a structurally incomplete rule or event, such as a
// missing FREQ or DTSTART. The rule or event is discarded.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AdvanceError reports that calendar arithmetic could not produce a valid next
// instant. It ends the expansion loop of one event only.
type AdvanceError struct {
	From   time.Time
	Reason string
}

func (e *AdvanceError) Error() string {
	return fmt.Sprintf("cannot advance from %s: %s", e.From.Format(time.RFC3339), e.Reason)
}

func formatErr(kind, value, reason string) error {
	return &FormatError{Kind: kind, Value: value, Reason: reason}
}

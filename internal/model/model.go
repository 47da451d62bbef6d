package model

import "time"

// Event is a fully materialized VEVENT: every field was present and
// parseable when the record closed. Partial records never become an Event.
//
// Start <= End is not enforced; an inverted event simply never contains
// any instant.
type Event struct {
	Name string

	// Location is the zone that was current at BEGIN:VEVENT. Start and End
	// are already expressed in it.
	Location *time.Location

	Start time.Time
	End   time.Time
}

// TimeZone returns the IANA identifier of the event's zone.
func (e Event) TimeZone() string {
	if e.Location == nil {
		return ""
	}
	return e.Location.String()
}

// Contains reports whether t falls inside [Start, End). t is converted into
// the event's zone first so callers can pass any instant.
func (e Event) Contains(t time.Time) bool {
	if e.Location != nil {
		t = t.In(e.Location)
	}
	return !t.Before(e.Start) && t.Before(e.End)
}

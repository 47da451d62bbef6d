package ics

import (
	"strings"
	"time"

	"icsbusy/internal/model"
)

// State is the parser's position relative to VEVENT records. Records are
// never nested, so two states are enough.
type State int

const (
	StateIdle State = iota
	StateInEvent
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInEvent:
		return "in_event"
	default:
		return "unknown"
	}
}

// partialEvent accumulates one VEVENT until END:VEVENT.
type partialEvent struct {
	name     *string
	location *time.Location
	start    *time.Time
	end      *time.Time
}

func (p *partialEvent) finalize() (model.Event, bool) {
	if p.name == nil || p.location == nil || p.start == nil || p.end == nil {
		return model.Event{}, false
	}
	return model.Event{
		Name:     *p.name,
		Location: p.location,
		Start:    *p.start,
		End:      *p.end,
	}, true
}

// Stats counts what a Parser has seen so far. It is informational only.
type Stats struct {
	Lines         int
	ZonesDeclared int
	ZoneErrors    int
	EventsOpened  int
	EventsEmitted int
	EventsDropped int
}

// Parser is a line-at-a-time VEVENT state machine. It holds at most one
// open record, so memory use does not grow with the feed.
//
// A Parser belongs to a single feed scan and is not safe for concurrent use.
type Parser struct {
	// tz is the calendar-level zone from X-WR-TIMEZONE. It survives across
	// records and is copied into each record when it opens.
	tz    *time.Location
	open  *partialEvent
	stats Stats
}

// NewParser returns a Parser in StateIdle with no calendar zone.
func NewParser() *Parser {
	return &Parser{}
}

// State reports whether a VEVENT is currently open.
func (p *Parser) State() State {
	if p.open != nil {
		return StateInEvent
	}
	return StateIdle
}

// TimeZone returns the current calendar-level zone, or nil if none has
// been declared successfully.
func (p *Parser) TimeZone() *time.Location {
	return p.tz
}

// Stats returns a snapshot of the parser counters.
func (p *Parser) Stats() Stats {
	return p.stats
}

// ProcessLine advances the state machine by one line. It returns an event
// only when line closes a record that had every field set; incomplete or
// malformed records are dropped without error.
func (p *Parser) ProcessLine(line Line) (model.Event, bool) {
	p.stats.Lines++

	if !line.HasValue {
		return model.Event{}, false
	}

	switch line.Key {
	case "x-wr-timezone":
		p.stats.ZonesDeclared++
		loc, err := LoadZone(line.Value)
		if err != nil {
			p.stats.ZoneErrors++
			return model.Event{}, false
		}
		p.tz = loc

	case "begin":
		if !strings.EqualFold(line.Value, "vevent") {
			return model.Event{}, false
		}
		if p.open != nil {
			// Last BEGIN wins; the earlier record is lost.
			p.stats.EventsDropped++
		}
		p.stats.EventsOpened++
		p.open = &partialEvent{location: p.tz}

	case "end":
		if !strings.EqualFold(line.Value, "vevent") || p.open == nil {
			return model.Event{}, false
		}
		ev, ok := p.open.finalize()
		p.open = nil
		if !ok {
			p.stats.EventsDropped++
			return model.Event{}, false
		}
		p.stats.EventsEmitted++
		return ev, true

	case "dtstart":
		if t, ok := p.resolve(line.Value); ok {
			p.open.start = &t
		}

	case "dtend":
		if t, ok := p.resolve(line.Value); ok {
			p.open.end = &t
		}

	case "summary":
		if p.open != nil {
			name := line.Value
			p.open.name = &name
		}
	}

	return model.Event{}, false
}

// resolve parses a DATE-TIME value in the open record's own zone. It fails
// when no record is open or the record has no zone.
func (p *Parser) resolve(raw string) (time.Time, bool) {
	if p.open == nil || p.open.location == nil {
		return time.Time{}, false
	}
	t, err := ResolveTime(raw, p.open.location)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

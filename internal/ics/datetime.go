package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	// Feeds name arbitrary IANA zones; don't depend on the host's zoneinfo.
	_ "time/tzdata"
)

// dateTimeLayout is the basic DATE-TIME form, e.g. 20211122T091500.
const dateTimeLayout = "20060102T150405"

// ResolveTime parses an ICS DATE-TIME token into an instant in loc.
//
// A trailing UTC marker ("Z") is stripped. The remaining digits are read
// as UTC whether or not the marker was present (floating times are not
// distinguished), then converted to loc.
func ResolveTime(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		return time.Time{}, errors.New("resolve time: nil location")
	}
	v := strings.TrimRight(raw, "Z")
	// time.Parse accepts fractional seconds after the layout's seconds.
	if len(v) != len(dateTimeLayout) {
		return time.Time{}, fmt.Errorf("resolve time %q: not in YYYYMMDDThhmmss form", raw)
	}
	t, err := time.Parse(dateTimeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve time %q: %w", raw, err)
	}
	return t.In(loc), nil
}

// LoadZone resolves an IANA zone identifier such as "Europe/Berlin".
//
// Unlike time.LoadLocation, the empty name and "Local" are rejected: a
// feed must never be evaluated in the host's zone by accident. The name is
// used as given; surrounding whitespace makes it invalid.
func LoadZone(name string) (*time.Location, error) {
	switch name {
	case "":
		return nil, errors.New("load zone: empty name")
	case "Local":
		return nil, errors.New("load zone: \"Local\" is not an IANA zone")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", name, err)
	}
	return loc, nil
}

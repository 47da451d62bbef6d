package ics

import "strings"

// Line is one content line split into its property key and raw value.
type Line struct {
	// Key is lowercased so property names match case-insensitively.
	Key string
	// Value is everything after the first colon, untouched.
	Value string
	// HasValue is false when the raw line had no colon at all.
	HasValue bool
}

// ParseLine splits raw on the first colon only. Values such as
// "value:with:colons" are kept whole. It never fails: a line without a
// colon becomes a key with no value.
func ParseLine(raw string) Line {
	key, value, found := strings.Cut(raw, ":")
	return Line{
		Key:      strings.ToLower(key),
		Value:    value,
		HasValue: found,
	}
}

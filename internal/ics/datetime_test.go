package ics

import (
	"testing"
	"time"
)

const zoneLayout = "2006-01-02 15:04:05 MST"

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadZone(name)
	if err != nil {
		t.Fatalf("LoadZone(%q): %v", name, err)
	}
	return loc
}

func TestResolveTime(t *testing.T) {
	tests := []struct {
		raw  string
		zone string
		want string
	}{
		{"20211122T091500Z", "Asia/Jerusalem", "2021-11-22 11:15:00 IST"},
		{"20211122T091500Z", "Europe/Berlin", "2021-11-22 10:15:00 CET"},
		// Floating times are read as UTC too.
		{"20211122T091500", "Europe/Berlin", "2021-11-22 10:15:00 CET"},
		{"20211122T111500", "Asia/Jerusalem", "2021-11-22 13:15:00 IST"},
		{"20211122T111500", "Europe/Berlin", "2021-11-22 12:15:00 CET"},
		{"20210701T120000Z", "Europe/Berlin", "2021-07-01 14:00:00 CEST"},
		{"20211122T091500Z", "UTC", "2021-11-22 09:15:00 UTC"},
	}

	for _, tt := range tests {
		got, err := ResolveTime(tt.raw, mustZone(t, tt.zone))
		if err != nil {
			t.Errorf("ResolveTime(%q, %s): unexpected error: %v", tt.raw, tt.zone, err)
			continue
		}
		if s := got.Format(zoneLayout); s != tt.want {
			t.Errorf("ResolveTime(%q, %s) = %s, want %s", tt.raw, tt.zone, s, tt.want)
		}
		if got.Location().String() != tt.zone {
			t.Errorf("ResolveTime(%q, %s) location = %s", tt.raw, tt.zone, got.Location())
		}
	}
}

func TestResolveTime_SameDigitsSameInstant(t *testing.T) {
	a, err := ResolveTime("20211122T111500", mustZone(t, "Asia/Jerusalem"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ResolveTime("20211122T111500", mustZone(t, "Europe/Berlin"))
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Fatalf("expected the same instant, got %v and %v", a, b)
	}
	if a.Format(zoneLayout) == b.Format(zoneLayout) {
		t.Fatalf("expected different wall clocks, both %s", a.Format(zoneLayout))
	}
}

func TestResolveTime_Malformed(t *testing.T) {
	loc := mustZone(t, "Europe/Berlin")
	for _, raw := range []string{
		"",
		"Z",
		"20211122",
		"20211122T0915",
		"2021-11-22T09:15:00Z",
		"20211122X091500Z",
		"20211322T091500Z",
		"20211122T091500+0100",
		"20211122T091500Zjunk",
		"20211122T091500.5Z",
		"20211122T091500,5",
		"20211122T091500.000",
	} {
		if got, err := ResolveTime(raw, loc); err == nil {
			t.Errorf("ResolveTime(%q) = %v, want error", raw, got)
		}
	}

	if _, err := ResolveTime("20211122T091500Z", nil); err == nil {
		t.Error("expected error for nil location")
	}
}

func TestLoadZone(t *testing.T) {
	for _, name := range []string{"Asia/Jerusalem", "Europe/Berlin", "America/New_York", "UTC"} {
		if _, err := LoadZone(name); err != nil {
			t.Errorf("LoadZone(%q): unexpected error: %v", name, err)
		}
	}
	for _, name := range []string{"", "Local", "Not/AZone", "Europe/Berlin extra", " Europe/Berlin", "Europe/Berlin "} {
		if _, err := LoadZone(name); err == nil {
			t.Errorf("LoadZone(%q): expected error", name)
		}
	}
}

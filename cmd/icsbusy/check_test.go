package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

func TestCutLabel(t *testing.T) {
	tests := []struct {
		arg     string
		label   string
		locator string
		ok      bool
	}{
		{"alice=https://example.com/a.ics", "alice", "https://example.com/a.ics", true},
		{"team=./cal.ics", "team", "./cal.ics", true},
		{"https://example.com/a.ics?token=abc", "", "", false},
		{"./cal.ics", "", "", false},
		{"=https://example.com/a.ics", "", "", false},
		{"alice=", "", "", false},
		{"a.b=https://example.com/a.ics", "", "", false},
	}

	for _, tt := range tests {
		label, loc, ok := cutLabel(tt.arg)
		if label != tt.label || loc != tt.locator || ok != tt.ok {
			t.Errorf("cutLabel(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.arg, label, loc, ok, tt.label, tt.locator, tt.ok)
		}
	}
}

func TestFeedArgs(t *testing.T) {
	got := feedArgs([]string{
		"alice=https://example.com/a.ics",
		"https://example.com/b.ics?x=1",
		"alice=https://example.com/c.ics",
	})

	want := map[string]string{
		"alice":                         "https://example.com/a.ics",
		"https://example.com/b.ics?x=1": "https://example.com/b.ics?x=1",
		"alice#2":                       "https://example.com/c.ics",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestParseWhen(t *testing.T) {
	base := time.Date(2021, 11, 22, 9, 0, 0, 0, time.UTC)

	got, err := parseWhen("in 2 hours", base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := base.Add(2 * time.Hour); !got.Equal(want) {
		t.Errorf("in 2 hours = %v, want %v", got, want)
	}

	got, err = parseWhen("2021-11-22T10:00:00+01:00", base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2021, 11, 22, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("RFC 3339 = %v, want %v", got, want)
	}

	if _, err := parseWhen("gibberish", base); err == nil {
		t.Error("expected an error for unparseable text")
	}
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"icsbusy"}, args...))
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	t.Setenv("ICSBUSY_CONFIG", "")
	team := filepath.Join("testdata", "team.ics")

	out, err := runApp(t, "check", "--at", "2021-11-22T09:30:00Z", "team="+team)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "team\tbusy\n" {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = runApp(t, "check", "--at", "2021-11-22T10:15:00Z", "team="+team)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "team\tfree\n" {
		t.Fatalf("event end is exclusive, got %q", out)
	}
}

func TestCheckCommand_UnreadableFeed(t *testing.T) {
	t.Setenv("ICSBUSY_CONFIG", "")
	team := filepath.Join("testdata", "team.ics")

	out, err := runApp(t, "check", "--at", "2021-11-26T14:30:00Z",
		"team="+team, "gone="+filepath.Join("testdata", "missing.ics"))

	var ec cli.ExitCoder
	if !errors.As(err, &ec) || ec.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if out != "team\tbusy\n" {
		t.Fatalf("readable feeds should still be printed, got %q", out)
	}
}

func TestCheckCommand_NoFeeds(t *testing.T) {
	t.Setenv("ICSBUSY_CONFIG", "")

	_, err := runApp(t, "check")
	var ec cli.ExitCoder
	if !errors.As(err, &ec) || ec.ExitCode() != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
}

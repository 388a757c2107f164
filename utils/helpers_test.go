package utils

import (
	"testing"
	"time"
)

func TestParseHourMinute(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		expHour    int
		expMinutes int
	}{
		{
			name:       "simple time",
			input:      "08:30",
			expHour:    8,
			expMinutes: 30,
		},
		{
			name:       "midnight",
			input:      "00:00",
			expHour:    0,
			expMinutes: 0,
		},
		{
			name:       "last minute",
			input:      "23:59",
			expHour:    23,
			expMinutes: 59,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h, m, err := ParseHourMinute(tc.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if h != tc.expHour || m != tc.expMinutes {
				t.Fatalf("expected %02d:%02d, got %02d:%02d", tc.expHour, tc.expMinutes, h, m)
			}
		})
	}
}

func TestParseHourMinuteInvalid(t *testing.T) {
	inputs := []string{
		"invalid", "", "25:99", "8:30", " 08:30",
		"18:00:59", "09:15:00Z", "2025-01-01T18:00", "2007-11-30 13:45:00", "at 18:00 sharp",
	}
	for _, input := range inputs {
		if _, _, err := ParseHourMinute(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestAtClockKeepsDateAndLocation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	date := time.Date(2025, 6, 2, 23, 59, 0, 0, loc)
	got := AtClock(date, 18, 0)
	want := time.Date(2025, 6, 2, 18, 0, 0, 0, loc)
	if !got.Equal(want) || got.Location() != loc {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseUint(t *testing.T) {
	if v, err := ParseUint(" 42 "); err != nil || v != 42 {
		t.Fatalf("expected 42, got %d (%v)", v, err)
	}
	for _, bad := range []string{"0", "-1", "abc", ""} {
		if _, err := ParseUint(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc.def"); got != "abc.def" {
		t.Fatalf("unexpected token %q", got)
	}
	if got := BearerToken("abc.def"); got != "abc.def" {
		t.Fatalf("unexpected token %q", got)
	}
}

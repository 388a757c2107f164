package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseHourMinute parses a strict "HH:MM" time of day
func ParseHourMinute(value string) (int, int, error) {
	if value == "" {
		return 0, 0, fmt.Errorf("time value cannot be empty")
	}
	if len(value) != len("15:04") {
		return 0, 0, fmt.Errorf("invalid time format %q: want HH:MM", value)
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time format %q: want HH:MM", value)
	}
	return t.Hour(), t.Minute(), nil
}

// AtClock returns the calendar day of date combined with hour:minute in date's location
func AtClock(date time.Time, hour, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
}

// ParseUint parses a positive numeric identifier
func ParseUint(s string) (uint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(v), nil
}

// SanitizeString removes dangerous characters from string
func SanitizeString(input string) string {
	// Remove null bytes and control characters
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	return input
}

// BearerToken strips the "Bearer " prefix from an Authorization header value
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

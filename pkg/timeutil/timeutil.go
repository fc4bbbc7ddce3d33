// Package timeutil provides calendar-date helpers. Internship start and end
// dates are days, not instants; they are read in the service timezone and
// stored at midnight UTC.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and CLI format for calendar dates.
const DateLayout = "2006-01-02"

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// CalendarDay returns t's calendar day in loc as midnight UTC, the form
// stored for start and end dates.
func CalendarDay(t time.Time, loc *time.Location) time.Time {
	d := StartOfDay(t, loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date. The words "today" and "tomorrow" are
// resolved against now in loc.
func ParseDate(value string, now time.Time, loc *time.Location) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return time.Time{}, fmt.Errorf("empty date")
	case "today":
		return CalendarDay(now, loc), nil
	case "tomorrow":
		return CalendarDay(now, loc).AddDate(0, 0, 1), nil
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want %s", value, DateLayout)
	}
	return t, nil
}

// ParseOptionalDate is ParseDate that maps an empty value to nil.
func ParseOptionalDate(value string, now time.Time, loc *time.Location) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := ParseDate(value, now, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FormatDate formats a calendar day. The zero time formats as "".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

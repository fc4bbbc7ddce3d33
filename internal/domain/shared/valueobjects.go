// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// DistinctIDs returns the ids in input order and the ones that appear more than once.
func DistinctIDs(ids []string) (unique []string, duplicates []string) {
	seen := make(map[string]int, len(ids))
	for _, id := range ids {
		seen[id]++
		if seen[id] == 1 {
			unique = append(unique, id)
		} else if seen[id] == 2 {
			duplicates = append(duplicates, id)
		}
	}
	return unique, duplicates
}

// ═══════════════════════════════════════════════════════════════════════════
// Gender Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Gender of a student, or the gender a slot accepts.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	// GenderAny is only meaningful as a slot restriction.
	GenderAny Gender = "any"
)

// IsValid checks if the gender is a known value.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderAny:
		return true
	}
	return false
}

// String returns the string representation.
func (g Gender) String() string {
	return string(g)
}

// ParseGender parses a gender, accepting a few common spellings.
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "masculino":
		return GenderMale, nil
	case "female", "f", "femenino":
		return GenderFemale, nil
	case "any", "", "indistinto":
		return GenderAny, nil
	}
	return "", NewDomainError("shared", "ParseGender", ErrInvalidInput, fmt.Sprintf("unknown gender %q", s))
}

// ═══════════════════════════════════════════════════════════════════════════
// DateRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DateRange is a start date with an optional end date. Dates are compared at
// day granularity.
type DateRange struct {
	Start time.Time
	End   *time.Time
}

// IsValid checks if the range is valid.
func (r DateRange) IsValid() bool {
	if r.Start.IsZero() {
		return false
	}
	return r.End == nil || !Day(*r.End).Before(Day(r.Start))
}

// HasStarted reports whether the range has begun on the given day.
func (r DateRange) HasStarted(asOf time.Time) bool {
	return !Day(r.Start).After(Day(asOf))
}

// HasEnded reports whether the end date lies strictly before the given day.
func (r DateRange) HasEnded(asOf time.Time) bool {
	return r.End != nil && Day(*r.End).Before(Day(asOf))
}

// NewDateRange creates a new DateRange with validation.
func NewDateRange(start time.Time, end *time.Time) (DateRange, error) {
	dr := DateRange{Start: Day(start)}
	if end != nil {
		e := Day(*end)
		dr.End = &e
	}
	if !dr.IsValid() {
		return DateRange{}, NewDomainError("shared", "NewDateRange", ErrInvalidInput, "end date must not be before start date")
	}
	return dr, nil
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

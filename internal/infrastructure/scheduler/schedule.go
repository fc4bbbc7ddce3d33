package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVAL
// ══════════════════════════════════════════════════════════════════════════════

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON
// ══════════════════════════════════════════════════════════════════════════════

// CronExpression is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
//   - "*/15 * * * *" - every 15 minutes
//   - "5 0 * * *"    - every day at 00:05
//   - "0 6 * * 1-5"  - weekdays at 06:00
type CronExpression struct {
	raw      string
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)
}

// ParseSchedule accepts "@every <duration>" or a cron expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("interval %s is shorter than one second", d)
		}
		return NewIntervalSchedule(d), nil
	}
	return ParseCronExpression(spec)
}

// ParseCronExpression parses a cron expression string.
// Supports: *, */n, n, n-m, n-m/s, n,m,o
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression: expected 5 fields, got %d", len(fields))
	}

	ce := &CronExpression{raw: expr}
	targets := []struct {
		name     string
		dst      *[]int
		min, max int
	}{
		{"minute", &ce.minutes, 0, 59},
		{"hour", &ce.hours, 0, 23},
		{"day", &ce.days, 1, 31},
		{"month", &ce.months, 1, 12},
		{"weekday", &ce.weekdays, 0, 6},
	}
	for i, t := range targets {
		values, err := parseField(fields[i], t.min, t.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", t.name, err)
		}
		*t.dst = values
	}
	return ce, nil
}

func parseField(field string, min, max int) ([]int, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		lo, hi, step, err := parseRange(strings.TrimSpace(part), min, max)
		if err != nil {
			return nil, err
		}
		for v := lo; v <= hi; v += step {
			set[v] = true
		}
	}

	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

// parseRange handles "*", "n", "n-m" with an optional "/step".
func parseRange(part string, min, max int) (lo, hi, step int, err error) {
	step = 1
	if base, s, ok := strings.Cut(part, "/"); ok {
		step, err = strconv.Atoi(s)
		if err != nil || step <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid step value: %s", s)
		}
		part = base
	}

	switch {
	case part == "*":
		lo, hi = min, max
	case strings.Contains(part, "-"):
		a, b, _ := strings.Cut(part, "-")
		if lo, err = strconv.Atoi(a); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range start: %s", a)
		}
		if hi, err = strconv.Atoi(b); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range end: %s", b)
		}
	default:
		if lo, err = strconv.Atoi(part); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid value: %s", part)
		}
		hi = lo
		if step > 1 {
			hi = max
		}
	}

	if lo < min || hi > max || lo > hi {
		return 0, 0, 0, fmt.Errorf("value out of range [%d-%d]: %s", min, max, part)
	}
	return lo, hi, step, nil
}

// String returns the original cron expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after the given time.
// A zero time means nothing matches within a year.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Add(time.Minute).Truncate(time.Minute)

	const maxIterations = 366 * 24 * 60
	for i := 0; i < maxIterations; i++ {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return contains(ce.minutes, t.Minute()) &&
		contains(ce.hours, t.Hour()) &&
		contains(ce.days, t.Day()) &&
		contains(ce.months, int(t.Month())) &&
		contains(ce.weekdays, int(t.Weekday()))
}

func contains(sorted []int, val int) bool {
	i := sort.SearchInts(sorted, val)
	return i < len(sorted) && sorted[i] == val
}

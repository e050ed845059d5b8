// Package cron parses five-field cron expressions and computes the next
// run time. All times are UTC.
//
// Supported syntax per field: "*", "N", "A-B", lists "A,B", and steps
// "*/S" or "A-B/S". Day of week accepts 0-7 with both 0 and 7 meaning
// Sunday. The macros @hourly, @daily (@midnight), @weekly, @monthly and
// @yearly (@annually) are accepted too.
//
// When both day of month and day of week are restricted, a day matches if
// either does, as in classic cron.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed cron expression.
type Schedule struct {
	expr   string
	minute set
	hour   set
	dom    set
	month  set
	dow    set
	// domAny and dowAny record wildcard day fields.
	domAny bool
	dowAny bool
}

// set is a bitset over the values 0-63.
type set uint64

func (s set) has(v int) bool { return s&(1<<uint(v)) != 0 }

var macros = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

type bounds struct {
	name     string
	min, max int
}

var fieldBounds = [5]bounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 7},
}

// Parse parses expr. Errors name the offending field.
func Parse(expr string) (Schedule, error) {
	spec := strings.TrimSpace(expr)
	if m, ok := macros[strings.ToLower(spec)]; ok {
		spec = m
	}
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return Schedule{}, fmt.Errorf("cron %q: expected 5 fields, got %d", expr, len(fields))
	}

	var sets [5]set
	for i, field := range fields {
		s, err := parseField(field, fieldBounds[i])
		if err != nil {
			return Schedule{}, fmt.Errorf("cron %q: %s field: %w", expr, fieldBounds[i].name, err)
		}
		sets[i] = s
	}
	dow := sets[4]
	if dow.has(7) {
		dow |= 1
	}

	return Schedule{
		expr:   expr,
		minute: sets[0],
		hour:   sets[1],
		dom:    sets[2],
		month:  sets[3],
		dow:    dow,
		domAny: strings.HasPrefix(fields[2], "*"),
		dowAny: strings.HasPrefix(fields[4], "*"),
	}, nil
}

// MustParse is Parse for expressions known to be valid.
func MustParse(expr string) Schedule {
	s, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the expression the schedule was parsed from.
func (s Schedule) String() string {
	return s.expr
}

func (s Schedule) dayMatches(t time.Time) bool {
	domOK := s.dom.has(t.Day())
	dowOK := s.dow.has(int(t.Weekday()))
	switch {
	case s.domAny && s.dowAny:
		return true
	case s.domAny:
		return dowOK
	case s.dowAny:
		return domOK
	default:
		return domOK || dowOK
	}
}

// Next returns the first matching minute strictly after t. It fails for
// schedules that never fire, such as "0 0 31 2 *".
func (s Schedule) Next(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Minute).Add(time.Minute)
	// Eight years spans every leap day combination.
	limit := t.AddDate(8, 0, 0)

	for t.Before(limit) {
		switch {
		case !s.month.has(int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		case !s.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
		case !s.hour.has(t.Hour()):
			t = t.Truncate(time.Hour).Add(time.Hour)
		case !s.minute.has(t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cron %q: no matching time before %s", s.expr, limit.Format(time.RFC3339))
}

func parseField(field string, b bounds) (set, error) {
	var out set
	for _, term := range strings.Split(field, ",") {
		s, err := parseTerm(term, b)
		if err != nil {
			return 0, err
		}
		out |= s
	}
	return out, nil
}

// parseTerm handles one of *, */S, N, A-B, A-B/S.
func parseTerm(term string, b bounds) (set, error) {
	rng, stepText, hasStep := strings.Cut(term, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepText)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid step %q", stepText)
		}
		step = n
	}

	lo, hi := b.min, b.max
	switch {
	case rng == "*":
	case strings.Contains(rng, "-"):
		from, to, _ := strings.Cut(rng, "-")
		var err error
		if lo, err = strconv.Atoi(from); err != nil {
			return 0, fmt.Errorf("invalid range start %q", from)
		}
		if hi, err = strconv.Atoi(to); err != nil {
			return 0, fmt.Errorf("invalid range end %q", to)
		}
		if lo > hi {
			return 0, fmt.Errorf("range %d-%d is reversed", lo, hi)
		}
	default:
		n, err := strconv.Atoi(rng)
		if err != nil {
			return 0, fmt.Errorf("invalid value %q", rng)
		}
		lo, hi = n, n
		if hasStep {
			hi = b.max
		}
	}
	if lo < b.min || hi > b.max {
		return 0, fmt.Errorf("%d-%d outside %d-%d", lo, hi, b.min, b.max)
	}

	var out set
	for v := lo; v <= hi; v += step {
		out |= 1 << uint(v)
	}
	return out, nil
}

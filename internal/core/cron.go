package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidExpression = errors.New("invalid cron expression")
	ErrNoMatchFound      = errors.New("no matching run time found")
)

const (
	fieldMinute = iota
	fieldHour
	fieldDay
	fieldMonth
	fieldWeekday
)

var fieldNames = [5]string{"minute", "hour", "day", "month", "weekday"}

type fieldBounds struct {
	min, max int
}

// Weekday accepts 0-7 with both 0 and 7 meaning Sunday.
var cronBounds = [5]fieldBounds{
	{0, 59},
	{0, 23},
	{1, 31},
	{1, 12},
	{0, 7},
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

var weekdayNames = map[string]int{
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// nextRunBudget bounds the minute-stepping search to four years, the longest
// gap between runs of a sparse but reachable schedule (Feb 29).
const nextRunBudget = (4*365 + 1) * 24 * 60

// CronExpression is a validated 5-field cron schedule. Fields are kept
// verbatim and expanded into value sets per query.
type CronExpression struct {
	expr   string
	fields [5]string
}

// ParseCron validates a 5-field cron definition and returns the parsed
// expression. Descriptor shortcuts such as @daily are not supported.
func ParseCron(expr string) (*CronExpression, error) {
	trimmed := strings.TrimSpace(expr)
	fields := strings.Fields(trimmed)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidExpression, len(fields))
	}
	parsed := &CronExpression{expr: trimmed}
	copy(parsed.fields[:], fields)
	for i, field := range fields {
		if field == "*" {
			continue
		}
		if _, err := expandField(field, i); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

// IsValidCron reports whether expr parses as a 5-field cron expression.
func IsValidCron(expr string) bool {
	_, err := ParseCron(expr)
	return err == nil
}

// String returns the original trimmed expression text.
func (c *CronExpression) String() string {
	return c.expr
}

// Matches reports whether t falls on the schedule. A bare * field always
// matches. The weekday is tested with Sunday as 7, so a 0 or SUN in the
// weekday field only matches Sundays through * or an expansion containing 7.
func (c *CronExpression) Matches(t time.Time) bool {
	m, err := c.newMatcher()
	if err != nil {
		return false
	}
	return m.matches(t)
}

// NextRunDate returns the first minute after from that matches the schedule.
// The search walks minute by minute and fails with ErrNoMatchFound once the
// four-year budget is exhausted, so impossible dates such as Feb 31 cannot
// hang the caller.
func (c *CronExpression) NextRunDate(from time.Time) (time.Time, error) {
	m, err := c.newMatcher()
	if err != nil {
		return time.Time{}, err
	}
	candidate := from.Truncate(time.Minute)
	for i := 0; i < nextRunBudget; i++ {
		candidate = candidate.Add(time.Minute)
		if m.matches(candidate) {
			return candidate, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w for %q after %s", ErrNoMatchFound, c.expr, from.Format(time.RFC3339))
}

// NextOccurrences returns the next n run times after from.
func (c *CronExpression) NextOccurrences(from time.Time, n int) ([]time.Time, error) {
	times := make([]time.Time, 0, n)
	next := from
	for i := 0; i < n; i++ {
		t, err := c.NextRunDate(next)
		if err != nil {
			return times, err
		}
		times = append(times, t)
		next = t
	}
	return times, nil
}

// matcher holds the expanded value sets for one evaluation pass. A nil set
// marks a bare * field.
type matcher struct {
	sets [5]map[int]bool
}

func (c *CronExpression) newMatcher() (*matcher, error) {
	m := &matcher{}
	for i, field := range c.fields {
		if field == "*" {
			continue
		}
		set, err := expandField(field, i)
		if err != nil {
			return nil, err
		}
		m.sets[i] = set
	}
	return m, nil
}

func (m *matcher) matches(t time.Time) bool {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	components := [5]int{t.Minute(), t.Hour(), t.Day(), int(t.Month()), weekday}
	for i, set := range m.sets {
		if set == nil {
			continue
		}
		if !set[components[i]] {
			return false
		}
	}
	return true
}

// expandField expands a non-* field expression into its set of accepted
// values: comma-separated parts, each a single value, an inclusive a-b range,
// or either of those (or *) with a /step suffix. Steps keep the elements at
// 0-based positions 0, step, 2*step within the expanded sequence, not the
// values that are multiples of the step. Month and weekday names are
// substituted before numeric parsing.
func expandField(expr string, field int) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(expr, ",") {
		values, err := expandPart(substituteNames(part, field), field)
		if err != nil {
			return nil, fmt.Errorf("%w: %s field %q: %v", ErrInvalidExpression, fieldNames[field], part, err)
		}
		for _, v := range values {
			set[v] = true
		}
	}
	return set, nil
}

func expandPart(part string, field int) ([]int, error) {
	bounds := cronBounds[field]
	rangeExpr := part
	step := 1
	if idx := strings.Index(part, "/"); idx >= 0 {
		rangeExpr = part[:idx]
		parsed, err := strconv.Atoi(part[idx+1:])
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("bad step %q", part[idx+1:])
		}
		step = parsed
	}

	var seq []int
	switch {
	case rangeExpr == "*":
		for v := bounds.min; v <= bounds.max; v++ {
			seq = append(seq, v)
		}
	case strings.Contains(rangeExpr, "-"):
		edges := strings.SplitN(rangeExpr, "-", 2)
		lo, err := parseFieldValue(edges[0], bounds)
		if err != nil {
			return nil, err
		}
		hi, err := parseFieldValue(edges[1], bounds)
		if err != nil {
			return nil, err
		}
		// A reversed range expands empty and never matches; it is not a
		// parse error, mirroring impossible-date expressions.
		for v := lo; v <= hi; v++ {
			seq = append(seq, v)
		}
	default:
		v, err := parseFieldValue(rangeExpr, bounds)
		if err != nil {
			return nil, err
		}
		seq = []int{v}
	}

	if step > 1 {
		var stepped []int
		for i := 0; i < len(seq); i += step {
			stepped = append(stepped, seq[i])
		}
		seq = stepped
	}
	return seq, nil
}

func parseFieldValue(s string, bounds fieldBounds) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	if v < bounds.min || v > bounds.max {
		return 0, fmt.Errorf("value %d out of range %d-%d", v, bounds.min, bounds.max)
	}
	return v, nil
}

// substituteNames rewrites month names (month field) or weekday names
// (weekday field) to their numeric equivalents, case-insensitively. Other
// fields pass through untouched.
func substituteNames(part string, field int) string {
	var names map[string]int
	switch field {
	case fieldMonth:
		names = monthNames
	case fieldWeekday:
		names = weekdayNames
	default:
		return part
	}
	lowered := strings.ToLower(part)
	for name, value := range names {
		lowered = strings.ReplaceAll(lowered, name, strconv.Itoa(value))
	}
	return lowered
}

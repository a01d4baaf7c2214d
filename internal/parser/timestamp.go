// Package parser turns user supplied time expressions into timestamps. It
// backs the --at flag of the CLI and the typecast of date cells.
package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

// TimestampResult holds the parsed timestamp and any error.
type TimestampResult struct {
	Time  time.Time
	Error error
}

// periodRegex matches period expressions like "this week", "last month".
var periodRegex = regexp.MustCompile(`(?i)^(this|current|last|previous)\s+(hour|day|week|month|quarter|year)$`)

// exactLayouts are tried before natural language parsing.
var exactLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp parses a natural language timestamp expression relative to
// the current time.
func ParseTimestamp(input string) TimestampResult {
	return ParseTimestampAt(input, time.Now())
}

// ParseTimestampAt parses input relative to now. Empty input and "now"
// return now.
func ParseTimestampAt(input string, now time.Time) TimestampResult {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, "now") {
		return TimestampResult{Time: now}
	}

	for _, layout := range exactLayouts {
		if t, err := time.ParseInLocation(layout, input, now.Location()); err == nil {
			return TimestampResult{Time: t}
		}
	}

	if match := periodRegex.FindStringSubmatch(input); match != nil {
		return parsePeriod(now, match[1], match[2])
	}

	cfg := &dateparser.Configuration{
		CurrentTime: now,
	}
	result, err := dateparser.Parse(cfg, input)
	if err != nil || result.Time.IsZero() {
		return TimestampResult{Error: NewTimestampError(input)}
	}
	return TimestampResult{Time: result.Time}
}

// ParseCellDate parses the text of a date cell and returns it in UTC. Unlike
// ParseTimestamp it rejects empty input.
func ParseCellDate(input string) (time.Time, error) {
	if strings.TrimSpace(input) == "" {
		return time.Time{}, NewTimeParseError("date", input, "date cannot be empty", TimestampExamples...)
	}
	res := ParseTimestampAt(input, time.Now().UTC())
	if res.Error != nil {
		return time.Time{}, res.Error
	}
	return res.Time.UTC(), nil
}

// parsePeriod handles period expressions like "this week", "last month".
func parsePeriod(now time.Time, modifier, period string) TimestampResult {
	previous := strings.EqualFold(modifier, "last") || strings.EqualFold(modifier, "previous")

	var t time.Time
	switch strings.ToLower(period) {
	case "hour":
		t = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
		if previous {
			t = t.Add(-time.Hour)
		}

	case "day":
		t = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if previous {
			t = t.AddDate(0, 0, -1)
		}

	case "week":
		// Weeks start on Monday
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		t = time.Date(now.Year(), now.Month(), now.Day()-weekday+1, 0, 0, 0, 0, now.Location())
		if previous {
			t = t.AddDate(0, 0, -7)
		}

	case "month":
		t = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		if previous {
			t = t.AddDate(0, -1, 0)
		}

	case "quarter":
		quarter := (int(now.Month()) - 1) / 3
		t = time.Date(now.Year(), time.Month(quarter*3+1), 1, 0, 0, 0, 0, now.Location())
		if previous {
			t = t.AddDate(0, -3, 0)
		}

	case "year":
		t = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		if previous {
			t = t.AddDate(-1, 0, 0)
		}

	default:
		return TimestampResult{Time: now}
	}
	return TimestampResult{Time: t}
}

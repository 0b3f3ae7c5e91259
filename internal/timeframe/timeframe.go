// Package timeframe turns statements such as "past 2 days" or "next year"
// into absolute intervals.
//
// Grammar: <prefix> [<count>] <unit>, case-insensitive. Prefixes "past" and
// "last" produce a window ending now; "next" and "coming" a window starting
// now. The count defaults to 1. A month is four weeks and a year fifty-two.
package timeframe

import (
	"strconv"
	"strings"
	"time"

	"graphi/backend/internal/apperr"
	"graphi/backend/internal/domain"
)

const (
	Week  = 7 * 24 * time.Hour
	Month = 4 * Week
	Year  = 52 * Week
)

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   Week,
	"month":  Month,
	"year":   Year,
}

type direction int

const (
	backward direction = iota
	forward
)

var prefixes = map[string]direction{
	"past":   backward,
	"last":   backward,
	"next":   forward,
	"coming": forward,
}

// Parse resolves statement relative to now.
func Parse(statement string, now time.Time) (domain.Interval, error) {
	fields := strings.Fields(strings.ToLower(statement))
	if len(fields) < 2 || len(fields) > 3 {
		return domain.Interval{}, invalid(statement, "expected <prefix> [<count>] <unit>")
	}

	dir, ok := prefixes[fields[0]]
	if !ok {
		return domain.Interval{}, invalid(statement, "unknown prefix "+strconv.Quote(fields[0]))
	}

	count := 1
	unitWord := fields[1]
	if len(fields) == 3 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return domain.Interval{}, invalid(statement, "count must be a positive integer")
		}
		count = n
		unitWord = fields[2]
	}

	unit, ok := lookupUnit(unitWord)
	if !ok {
		return domain.Interval{}, invalid(statement, "unknown unit "+strconv.Quote(unitWord))
	}

	span := time.Duration(count) * unit
	if span/unit != time.Duration(count) {
		return domain.Interval{}, invalid(statement, "timeframe too large")
	}
	if dir == backward {
		return domain.Interval{Start: now.Add(-span), End: now}, nil
	}
	return domain.Interval{Start: now, End: now.Add(span)}, nil
}

func lookupUnit(word string) (time.Duration, bool) {
	if d, ok := units[word]; ok {
		return d, true
	}
	if singular, found := strings.CutSuffix(word, "s"); found {
		d, ok := units[singular]
		return d, ok
	}
	return 0, false
}

func invalid(statement, reason string) error {
	return apperr.ErrInvalidTimeframe.WithDetail("invalid timeframe %q: %s", statement, reason)
}

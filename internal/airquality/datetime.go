package airquality

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DatetimeStrategy turns the values of Columns for one row into an instant.
type DatetimeStrategy struct {
	Name    string
	Columns []string
	Parse   func(values []string) (time.Time, bool)
}

// DatetimeStrategies is the resolution order. The first strategy whose
// columns are all present decides the timeline, even when none of its
// values parse.
var DatetimeStrategies = []DatetimeStrategy{
	{Name: "datetime", Columns: []string{"datetime"}, Parse: parseSingle},
	{Name: "date", Columns: []string{"date"}, Parse: parseSingle},
	{Name: "timestamp", Columns: []string{"timestamp"}, Parse: parseSingle},
	{Name: "year-month-day-hour", Columns: []string{"year", "month", "day", "hour"}, Parse: parseParts},
	{Name: "year-month-day", Columns: []string{"year", "month", "day"}, Parse: parseParts},
}

// Resolution is the outcome of resolving a table's timeline.
// Times[i] is zero when row i did not parse.
type Resolution struct {
	Strategy string
	Times    []time.Time
	Valid    int
}

// ResolveDatetime picks the first matching strategy and parses every row.
// ok is false when the table has no datetime-shaped columns at all.
func ResolveDatetime(t Table) (Resolution, bool) {
	for _, s := range DatetimeStrategies {
		if !t.Has(s.Columns...) {
			continue
		}
		idx := make([]int, len(s.Columns))
		for i, c := range s.Columns {
			idx[i] = t.Index(c)
		}

		res := Resolution{Strategy: s.Name, Times: make([]time.Time, len(t.Rows))}
		values := make([]string, len(idx))
		for row := range t.Rows {
			for i, col := range idx {
				values[i] = t.Cell(row, col)
			}
			if ts, ok := s.Parse(values); ok {
				res.Times[row] = ts
				res.Valid++
			}
		}
		return res, true
	}
	return Resolution{}, false
}

func parseSingle(values []string) (time.Time, bool) {
	return ParseInstant(values[0])
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseInstant parses a single date or date-time value. Values without
// an offset are read as UTC. The result is always expressed in UTC.
func ParseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "nat") || strings.EqualFold(s, "null") {
		return time.Time{}, false
	}
	for _, layout := range instantLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	ts, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || ts.IsZero() {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

// ParseDate parses a calendar date and returns UTC midnight of that day.
func ParseDate(s string) (time.Time, bool) {
	ts, ok := ParseInstant(s)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), true
}

func parseParts(values []string) (time.Time, bool) {
	parts := make([]int, 4)
	for i, v := range values {
		n, ok := parseWhole(v)
		if !ok {
			return time.Time{}, false
		}
		parts[i] = n
	}
	year, month, day, hour := parts[0], parts[1], parts[2], parts[3]
	if month < 1 || month > 12 || day < 1 || hour < 0 || hour > 23 {
		return time.Time{}, false
	}
	ts := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
	if ts.Day() != day {
		return time.Time{}, false
	}
	return ts, true
}

// parseWhole accepts integers and integral floats such as "2010.0".
func parseWhole(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

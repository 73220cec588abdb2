package airquality

import (
	"strings"
)

// Canonical column names.
const (
	ColDatetime    = "datetime"
	ColAQI         = "aqi"
	ColTemperature = "temperature"
	ColSource      = "source"
)

// columnAliases maps lower-cased source spellings to canonical names.
// Keys absent here pass through unchanged.
var columnAliases = map[string]string{
	"pm25":      "pm2.5",
	"pm_25":     "pm2.5",
	"pm2_5":     "pm2.5",
	"pm_2.5":    "pm2.5",
	"pm_10":     "pm10",
	"aqi_value": "aqi",
	"temp":      "temperature",
}

// NormalizeColumn trims, lower-cases and resolves aliases for a column name.
func NormalizeColumn(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := columnAliases[n]; ok {
		return alias
	}
	return n
}

// NormalizeColumns normalizes every name, preserving order.
func NormalizeColumns(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = NormalizeColumn(n)
	}
	return out
}

// Table is a parsed tabular payload with string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Normalize returns a copy of t with canonical column names.
func (t Table) Normalize() Table {
	return Table{Columns: NormalizeColumns(t.Columns), Rows: t.Rows}
}

// Index returns the position of the first column named name.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether every named column exists.
func (t Table) Has(names ...string) bool {
	for _, n := range names {
		if t.Index(n) < 0 {
			return false
		}
	}
	return true
}

// Cell returns the trimmed value at row/col, or "" when out of range.
func (t Table) Cell(row, col int) string {
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

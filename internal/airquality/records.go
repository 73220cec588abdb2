package airquality

import (
	"math"
	"strconv"
	"strings"
)

// BatchFromTable normalizes t, resolves its timeline and converts every row
// into a Record tagged with source. Rows whose timestamp fails to parse keep a
// zero Timestamp and are dropped at merge time.
func BatchFromTable(t Table, source string, priority Priority) Batch {
	t = t.Normalize()
	res, timeline := ResolveDatetime(t)

	pollutantCols := make(map[Pollutant]int)
	for _, p := range Pollutants {
		if i := t.Index(string(p)); i >= 0 {
			pollutantCols[p] = i
		}
	}
	aqiCol := t.Index(ColAQI)
	tempCol := t.Index(ColTemperature)

	batch := Batch{
		Source:   source,
		Priority: priority,
		Columns:  t.Columns,
		Timeline: timeline,
		Strategy: res.Strategy,
		Records:  make([]Record, 0, len(t.Rows)),
	}

	for row := range t.Rows {
		rec := Record{Source: source}
		if timeline {
			rec.Timestamp = res.Times[row]
		}
		for p, col := range pollutantCols {
			if v, ok := ParseNumber(t.Cell(row, col)); ok {
				rec.SetValue(p, v)
			}
		}
		if aqiCol >= 0 {
			if v, ok := ParseNumber(t.Cell(row, aqiCol)); ok {
				if a, ok := AQIFromFloat(v); ok {
					rec.AQI = &a
				}
			}
		}
		if tempCol >= 0 {
			if v, ok := ParseNumber(t.Cell(row, tempCol)); ok {
				rec.Temperature = &v
			}
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch
}

// ParseNumber coerces a cell to a finite float. Anything else is absent.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// AQIFromFloat truncates v to an AQI code. Negative, non-finite and values
// too large for an int32 are absent; other out-of-scale codes are kept and
// categorised as Unknown.
func AQIFromFloat(v float64) (int, bool) {
	if math.IsNaN(v) || v < 0 || v > math.MaxInt32 {
		return 0, false
	}
	return int(v), true
}

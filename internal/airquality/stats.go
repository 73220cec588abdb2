package airquality

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// NumericColumns is the order of numeric columns in statistics and exports.
var NumericColumns = []string{"pm2.5", "pm10", "no2", "so2", "o3", "co", "aqi"}

// columnValues returns the present values of a numeric column, frame order.
func columnValues(f Frame, col string) []float64 {
	var out []float64
	for _, r := range f.Records {
		if v, ok := numericValue(r, col); ok {
			out = append(out, v)
		}
	}
	return out
}

func numericValue(r Record, col string) (float64, bool) {
	if col == ColAQI {
		if r.AQI == nil {
			return 0, false
		}
		return float64(*r.AQI), true
	}
	v, ok := r.Values[Pollutant(col)]
	return v, ok
}

// PresentColumns returns the numeric columns with at least one value.
func PresentColumns(f Frame) []string {
	var out []string
	for _, c := range NumericColumns {
		for _, r := range f.Records {
			if _, ok := numericValue(r, c); ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Summary is the descriptive statistics of one column.
type Summary struct {
	Column string   `json:"column"`
	Count  int      `json:"count"`
	Mean   float64  `json:"mean"`
	Std    *float64 `json:"std"`
	Min    float64  `json:"min"`
	P25    float64  `json:"p25"`
	Median float64  `json:"median"`
	P75    float64  `json:"p75"`
	Max    float64  `json:"max"`
}

// Describe summarizes every present numeric column. Std is the sample
// standard deviation and is nil for a single observation.
func Describe(f Frame) []Summary {
	var out []Summary
	for _, col := range PresentColumns(f) {
		values := columnValues(f, col)
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)

		s := Summary{
			Column: col,
			Count:  len(sorted),
			Mean:   stat.Mean(sorted, nil),
			Min:    sorted[0],
			P25:    quantile(sorted, 0.25),
			Median: quantile(sorted, 0.5),
			P75:    quantile(sorted, 0.75),
			Max:    sorted[len(sorted)-1],
		}
		if len(sorted) > 1 {
			sd := stat.StdDev(sorted, nil)
			s.Std = &sd
		}
		out = append(out, s)
	}
	return out
}

// quantile interpolates linearly between the closest ranks of sorted data.
func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := float64(len(sorted)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// QualityRow reports the completeness of one numeric column.
type QualityRow struct {
	Column       string  `json:"column"`
	Records      int     `json:"records"`
	Missing      int     `json:"missing"`
	Completeness float64 `json:"completeness"`
}

// Quality reports present and missing values per present numeric column.
func Quality(f Frame) []QualityRow {
	total := f.Len()
	var out []QualityRow
	for _, col := range PresentColumns(f) {
		n := len(columnValues(f, col))
		row := QualityRow{Column: col, Records: n, Missing: total - n}
		if total > 0 {
			row.Completeness = float64(n) / float64(total) * 100
		}
		out = append(out, row)
	}
	return out
}

// CorrelationMatrix holds pairwise Pearson coefficients. A nil cell means
// fewer than two shared observations or zero variance.
type CorrelationMatrix struct {
	Columns []string     `json:"columns"`
	Values  [][]*float64 `json:"values"`
}

// Correlation computes Pearson coefficients using pairwise-complete rows.
func Correlation(f Frame) CorrelationMatrix {
	cols := PresentColumns(f)
	m := CorrelationMatrix{Columns: cols, Values: make([][]*float64, len(cols))}
	for i := range cols {
		m.Values[i] = make([]*float64, len(cols))
		for j := range cols {
			var xs, ys []float64
			for _, r := range f.Records {
				x, okx := numericValue(r, cols[i])
				y, oky := numericValue(r, cols[j])
				if okx && oky {
					xs = append(xs, x)
					ys = append(ys, y)
				}
			}
			if len(xs) < 2 {
				continue
			}
			c := stat.Correlation(xs, ys, nil)
			if math.IsNaN(c) || math.IsInf(c, 0) {
				continue
			}
			m.Values[i][j] = &c
		}
	}
	return m
}

// CategoryCount is the number of records in one AQI category.
type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
	Percent  float64  `json:"percent"`
}

// AQIDistribution counts records per AQI category, Good first and Unknown
// last. Categories without records are omitted.
func AQIDistribution(f Frame) []CategoryCount {
	counts := make(map[int]int)
	total := 0
	for _, r := range f.Records {
		if r.AQI == nil {
			continue
		}
		counts[AQICategory(*r.AQI).Level]++
		total++
	}
	var out []CategoryCount
	for _, c := range append(Categories(), CategoryUnknown) {
		n := counts[c.Level]
		if n == 0 {
			continue
		}
		out = append(out, CategoryCount{Category: c, Count: n, Percent: float64(n) / float64(total) * 100})
	}
	return out
}

// SourceCount is the number of records contributed by one source.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// SourceCounts counts records per source tag, sorted by tag.
func SourceCounts(f Frame) []SourceCount {
	counts := make(map[string]int)
	for _, r := range f.Records {
		counts[r.Source]++
	}
	out := make([]SourceCount, 0, len(counts))
	for s, n := range counts {
		out = append(out, SourceCount{Source: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// MonthMean is the mean of one year/month.
type MonthMean struct {
	Year  int     `json:"year"`
	Month int     `json:"month"`
	Mean  float64 `json:"mean"`
}

// Trend is the year-over-year view of one pollutant.
type Trend struct {
	Pollutant Pollutant   `json:"pollutant"`
	Yearly    []Group     `json:"yearly"`
	Monthly   []MonthMean `json:"monthly"`
	// ChangePct is the relative drop from the first to the last year;
	// positive means improvement. Nil with fewer than two years.
	ChangePct *float64 `json:"changePct,omitempty"`
}

// YearOverYear computes yearly and year/month means of p.
func YearOverYear(f Frame, p Pollutant) Trend {
	t := Trend{Pollutant: p, Yearly: GroupBy(f, p, ByYear)}

	type ym struct{ y, m int }
	sums := make(map[ym]float64)
	counts := make(map[ym]int)
	for _, r := range f.Records {
		v, ok := r.Values[p]
		if !ok {
			continue
		}
		k := ym{r.Timestamp.Year(), int(r.Timestamp.Month())}
		sums[k] += v
		counts[k]++
	}
	for k, n := range counts {
		t.Monthly = append(t.Monthly, MonthMean{Year: k.y, Month: k.m, Mean: sums[k] / float64(n)})
	}
	sort.Slice(t.Monthly, func(i, j int) bool {
		if t.Monthly[i].Year != t.Monthly[j].Year {
			return t.Monthly[i].Year < t.Monthly[j].Year
		}
		return t.Monthly[i].Month < t.Monthly[j].Month
	})

	if len(t.Yearly) >= 2 {
		first, last := t.Yearly[0].Mean, t.Yearly[len(t.Yearly)-1].Mean
		if first != 0 {
			c := (first - last) / first * 100
			t.ChangePct = &c
		}
	}
	return t
}

package airquality

import (
	"sort"
	"time"
)

// Pollutant is a canonical pollutant column name.
type Pollutant string

const (
	PM25 Pollutant = "pm2.5"
	PM10 Pollutant = "pm10"
	NO2  Pollutant = "no2"
	SO2  Pollutant = "so2"
	CO   Pollutant = "co"
	O3   Pollutant = "o3"
)

// Pollutants lists every pollutant key a Record can carry.
var Pollutants = []Pollutant{PM25, PM10, NO2, SO2, CO, O3}

// ExportPollutants is the fixed column order used by exports and statistics.
var ExportPollutants = []Pollutant{PM25, PM10, NO2, SO2, O3, CO}

// ParsePollutant maps a column name to a Pollutant after normalization.
func ParsePollutant(s string) (Pollutant, bool) {
	name := NormalizeColumn(s)
	for _, p := range Pollutants {
		if string(p) == name {
			return p, true
		}
	}
	return "", false
}

// Record is one timestamped observation from one source.
// A zero Timestamp means the source value could not be parsed.
type Record struct {
	Timestamp   time.Time             `json:"datetime"`
	Source      string                `json:"source"`
	Values      map[Pollutant]float64 `json:"values,omitempty"`
	AQI         *int                  `json:"aqi,omitempty"`
	Temperature *float64              `json:"temperature,omitempty"`
}

// Value returns the concentration for p if present.
func (r Record) Value(p Pollutant) (float64, bool) {
	v, ok := r.Values[p]
	return v, ok
}

// SetValue stores a concentration; negative values are treated as absent.
func (r *Record) SetValue(p Pollutant, v float64) {
	if v < 0 {
		return
	}
	if r.Values == nil {
		r.Values = make(map[Pollutant]float64)
	}
	r.Values[p] = v
}

func (r Record) clone() Record {
	out := r
	if r.Values != nil {
		out.Values = make(map[Pollutant]float64, len(r.Values))
		for k, v := range r.Values {
			out.Values[k] = v
		}
	}
	if r.AQI != nil {
		a := *r.AQI
		out.AQI = &a
	}
	if r.Temperature != nil {
		t := *r.Temperature
		out.Temperature = &t
	}
	return out
}

// Priority orders batches before concatenation. Later priorities win
// timestamp collisions during merge.
type Priority int

const (
	PriorityUpload Priority = iota
	PriorityHistory
	PrioritySnapshot
)

// Window is an inclusive time range requested from a provider.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Batch is the normalized output of one fetcher.
type Batch struct {
	Source   string
	Priority Priority
	Records  []Record

	// Columns holds the normalized column names the source offered.
	Columns []string
	// Timeline is false when no datetime-shaped input existed.
	Timeline bool
	// Strategy names the datetime strategy that produced the timestamps.
	Strategy string
	// Missing lists request windows that could not be fetched.
	Missing []Window
}

// Partial reports whether some requested windows are absent.
func (b Batch) Partial() bool {
	return len(b.Missing) > 0
}

// Frame is the canonical, time-sorted collection of records. Views derived
// from it are copies; the frame itself is never mutated after Merge.
type Frame struct {
	Records []Record `json:"records"`
	// Timeline is false when no source carried timestamps.
	Timeline bool `json:"timeline"`
	// Zone is the IANA name timestamps are expressed in; empty means UTC.
	Zone string `json:"zone"`
}

// Len returns the number of records.
func (f Frame) Len() int {
	return len(f.Records)
}

// Empty reports whether the frame holds no records.
func (f Frame) Empty() bool {
	return len(f.Records) == 0
}

// Has reports whether any record carries a value for p.
func (f Frame) Has(p Pollutant) bool {
	for _, r := range f.Records {
		if _, ok := r.Values[p]; ok {
			return true
		}
	}
	return false
}

// HasAQI reports whether any record carries an AQI value.
func (f Frame) HasAQI() bool {
	for _, r := range f.Records {
		if r.AQI != nil {
			return true
		}
	}
	return false
}

// Available returns the present pollutants in export order.
func (f Frame) Available() []Pollutant {
	var out []Pollutant
	for _, p := range ExportPollutants {
		if f.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Sources returns the distinct source tags, sorted.
func (f Frame) Sources() []string {
	seen := make(map[string]struct{})
	for _, r := range f.Records {
		seen[r.Source] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Location returns the time.Location of the frame's zone.
func (f Frame) Location() *time.Location {
	if f.Zone == "" {
		return time.UTC
	}
	if loc, err := time.LoadLocation(f.Zone); err == nil {
		return loc
	}
	return time.UTC
}

// Coverage describes the time span of a frame.
type Coverage struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
	Days  int       `json:"days"`
	Years float64   `json:"years"`
}

// Coverage returns the first/last timestamp of a sorted frame.
func (f Frame) Coverage() (Coverage, bool) {
	if f.Empty() || !f.Timeline {
		return Coverage{}, false
	}
	first := f.Records[0].Timestamp
	last := f.Records[len(f.Records)-1].Timestamp
	days := int(last.Sub(first).Hours() / 24)
	return Coverage{
		First: first,
		Last:  last,
		Days:  days,
		Years: float64(days) / 365.25,
	}, true
}

// Category is an AQI severity bucket.
type Category struct {
	Level int    `json:"level"`
	Label string `json:"label"`
	Color string `json:"color"`
	Range string `json:"range"`
}

// CategoryUnknown is returned for AQI values outside 1..5.
var CategoryUnknown = Category{Level: 0, Label: "Unknown", Color: "#9e9e9e"}

var categories = []Category{
	{Level: 1, Label: "Good", Color: "#00e400", Range: "0-50"},
	{Level: 2, Label: "Fair", Color: "#ffff00", Range: "51-100"},
	{Level: 3, Label: "Moderate", Color: "#ff7e00", Range: "101-150"},
	{Level: 4, Label: "Poor", Color: "#ff0000", Range: "151-200"},
	{Level: 5, Label: "Very Poor", Color: "#8f3f97", Range: "201-300+"},
}

// Categories returns the defined AQI categories, Good first.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// AQICategory maps an AQI code to its category.
func AQICategory(v int) Category {
	if v < 1 || v > len(categories) {
		return CategoryUnknown
	}
	return categories[v-1]
}

package airquality

import (
	"math"
	"sort"
	"strconv"
	"time"
)

// Rendering defaults.
const (
	DefaultResampleThreshold = 200000
	DefaultSmoothingWindow   = 24
)

func dateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// FilterDateRange keeps records whose calendar date, in the frame's own zone,
// lies within [from, to]. Only the Y/M/D fields of from and to are used.
func FilterDateRange(f Frame, from, to time.Time) Frame {
	lo, hi := dateKey(from), dateKey(to)
	out := Frame{Records: []Record{}, Timeline: f.Timeline, Zone: f.Zone}
	for _, r := range f.Records {
		k := dateKey(r.Timestamp)
		if k >= lo && k <= hi {
			out.Records = append(out.Records, r.clone())
		}
	}
	return out
}

// ForRendering returns f unchanged while it is within threshold rows and an
// hourly-mean resample otherwise. The bool reports whether it resampled.
func ForRendering(f Frame, threshold int) (Frame, bool) {
	if threshold <= 0 || f.Len() <= threshold {
		return f, false
	}
	return ResampleHourly(f), true
}

type bucket struct {
	start   time.Time
	sums    map[Pollutant]float64
	counts  map[Pollutant]int
	aqiSum  float64
	aqiN    int
	tempSum float64
	tempN   int
	source  string
	mixed   bool
}

// hourStart returns the instant at which t's local wall-clock hour began.
// The repeated hour of a DST fall-back yields two distinct instants.
func hourStart(t time.Time) time.Time {
	return t.Add(-time.Duration(t.Minute())*time.Minute -
		time.Duration(t.Second())*time.Second -
		time.Duration(t.Nanosecond()))
}

// ResampleHourly averages records into hour buckets aligned to the frame's
// zone. Hours without records produce no bucket.
func ResampleHourly(f Frame) Frame {
	loc := f.Location()
	var order []int64
	buckets := make(map[int64]*bucket)

	for _, r := range f.Records {
		start := hourStart(r.Timestamp.In(loc))
		key := start.Unix()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				start:  start,
				sums:   make(map[Pollutant]float64),
				counts: make(map[Pollutant]int),
				source: r.Source,
			}
			buckets[key] = b
			order = append(order, key)
		}
		if r.Source != b.source {
			b.mixed = true
		}
		for p, v := range r.Values {
			b.sums[p] += v
			b.counts[p]++
		}
		if r.AQI != nil {
			b.aqiSum += float64(*r.AQI)
			b.aqiN++
		}
		if r.Temperature != nil {
			b.tempSum += *r.Temperature
			b.tempN++
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := Frame{Records: make([]Record, 0, len(order)), Timeline: f.Timeline, Zone: f.Zone}
	for _, key := range order {
		b := buckets[key]
		rec := Record{Timestamp: b.start, Source: b.source}
		if b.mixed {
			rec.Source = "resampled"
		}
		for p, n := range b.counts {
			rec.SetValue(p, b.sums[p]/float64(n))
		}
		if b.aqiN > 0 {
			a := int(math.Round(b.aqiSum / float64(b.aqiN)))
			rec.AQI = &a
		}
		if b.tempN > 0 {
			t := b.tempSum / float64(b.tempN)
			rec.Temperature = &t
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

// Point is one sample of a single series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// SeriesOf extracts the present values of p in frame order.
func SeriesOf(f Frame, p Pollutant) []Point {
	var out []Point
	for _, r := range f.Records {
		if v, ok := r.Values[p]; ok {
			out = append(out, Point{Time: r.Timestamp, Value: v})
		}
	}
	return out
}

// AQISeries extracts the present AQI values in frame order.
func AQISeries(f Frame) []Point {
	var out []Point
	for _, r := range f.Records {
		if r.AQI != nil {
			out = append(out, Point{Time: r.Timestamp, Value: float64(*r.AQI)})
		}
	}
	return out
}

// Rolling computes a trailing mean over window samples. A value is produced
// once at least minPeriods samples are in the window; earlier points are
// omitted. The input is not modified.
func Rolling(points []Point, window, minPeriods int) []Point {
	if window < 1 {
		window = 1
	}
	if minPeriods < 1 {
		minPeriods = 1
	}
	if minPeriods > window {
		minPeriods = window
	}
	out := make([]Point, 0, len(points))
	var sum float64
	for i, pt := range points {
		sum += pt.Value
		if i >= window {
			sum -= points[i-window].Value
		}
		n := i + 1
		if n > window {
			n = window
		}
		if n < minPeriods {
			continue
		}
		out = append(out, Point{Time: pt.Time, Value: sum / float64(n)})
	}
	return out
}

// Normalize rescales values to 0-100 between the series min and max.
// A constant series maps to 0.
func Normalize(points []Point) []Point {
	if len(points) == 0 {
		return nil
	}
	lo, hi := points[0].Value, points[0].Value
	for _, pt := range points {
		lo = math.Min(lo, pt.Value)
		hi = math.Max(hi, pt.Value)
	}
	out := make([]Point, len(points))
	for i, pt := range points {
		v := 0.0
		if hi > lo {
			v = (pt.Value - lo) / (hi - lo) * 100
		}
		out[i] = Point{Time: pt.Time, Value: v}
	}
	return out
}

// GroupUnit is a calendar unit used for seasonal views.
type GroupUnit string

const (
	ByMonth   GroupUnit = "month"
	ByYear    GroupUnit = "year"
	ByHour    GroupUnit = "hour"
	ByWeekday GroupUnit = "weekday"
)

// Group is the mean of one calendar bucket.
type Group struct {
	Key   string  `json:"key"`
	Order int     `json:"order"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// weekdayOrder puts Monday first.
func weekdayOrder(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func groupKey(t time.Time, unit GroupUnit) (string, int, bool) {
	switch unit {
	case ByMonth:
		return t.Month().String(), int(t.Month()), true
	case ByYear:
		return strconv.Itoa(t.Year()), t.Year(), true
	case ByHour:
		return strconv.Itoa(t.Hour()), t.Hour(), true
	case ByWeekday:
		return t.Weekday().String(), weekdayOrder(t.Weekday()), true
	default:
		return "", 0, false
	}
}

// GroupBy averages p per calendar unit in the frame's zone. Only buckets
// holding data are returned, in calendar order.
func GroupBy(f Frame, p Pollutant, unit GroupUnit) []Group {
	if _, _, ok := groupKey(time.Time{}, unit); !ok {
		return nil
	}
	acc := make(map[int]*Group)
	sums := make(map[int]float64)
	for _, r := range f.Records {
		v, ok := r.Values[p]
		if !ok {
			continue
		}
		key, order, _ := groupKey(r.Timestamp, unit)
		g, ok := acc[order]
		if !ok {
			g = &Group{Key: key, Order: order}
			acc[order] = g
		}
		g.Count++
		sums[order] += v
	}
	out := make([]Group, 0, len(acc))
	for order, g := range acc {
		g.Mean = sums[order] / float64(g.Count)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// HeatmapCell is the mean for one weekday/hour pair.
type HeatmapCell struct {
	Weekday string  `json:"weekday"`
	Hour    int     `json:"hour"`
	Mean    float64 `json:"mean"`
	Count   int     `json:"count"`
}

// Heatmap averages p by weekday (Monday first) and hour of day. Pairs without
// data are omitted.
func Heatmap(f Frame, p Pollutant) []HeatmapCell {
	type key struct{ day, hour int }
	sums := make(map[key]float64)
	counts := make(map[key]int)
	names := make(map[int]string)
	for _, r := range f.Records {
		v, ok := r.Values[p]
		if !ok {
			continue
		}
		k := key{day: weekdayOrder(r.Timestamp.Weekday()), hour: r.Timestamp.Hour()}
		names[k.day] = r.Timestamp.Weekday().String()
		sums[k] += v
		counts[k]++
	}
	keys := make([]key, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].hour < keys[j].hour
	})
	out := make([]HeatmapCell, 0, len(keys))
	for _, k := range keys {
		out = append(out, HeatmapCell{
			Weekday: names[k.day],
			Hour:    k.hour,
			Mean:    sums[k] / float64(counts[k]),
			Count:   counts[k],
		})
	}
	return out
}

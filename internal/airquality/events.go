package airquality

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// EventText is the label pair attached to an event date.
type EventText struct {
	Short  string `yaml:"short" json:"short"`
	Detail string `yaml:"detail" json:"detail"`
}

// EventMarker annotates one calendar day.
type EventMarker struct {
	Date   time.Time `json:"date"` // UTC midnight
	Short  string    `json:"short"`
	Detail string    `json:"detail"`
}

// Day formats the marker date as YYYY-MM-DD.
func (e EventMarker) Day() string {
	return e.Date.Format("2006-01-02")
}

var defaultEvents = map[string]EventText{
	"2010-11-16": {"Severe smog episode", "Major air pollution event - PM2.5 exceeded 500 µg/m³. Led to public health warnings and increased awareness."},
	"2013-01-12": {"Airpocalypse begins", "Worst pollution crisis in Beijing's history. PM2.5 reached 900+ µg/m³. Prompted government action on air quality."},
	"2013-09-10": {"Air Pollution Action Plan", "China's State Council releases comprehensive air pollution prevention and control action plan. Target: 25% PM2.5 reduction by 2017."},
	"2015-11-30": {"Red alert issued", "Beijing's first-ever red alert for air pollution. Schools closed, construction halted, vehicle restrictions implemented."},
	"2016-12-16": {"Extended red alert", "Longest red alert in Beijing history - lasted 9 days. PM2.5 averaged 300+ µg/m³. Emergency measures activated."},
	"2017-01-01": {"Coal ban policy", "Beijing implements citywide coal-to-gas heating conversion. Banned coal burning in 6 central districts. Major policy shift."},
	"2018-09-01": {"Emission standards", "Stricter vehicle emission standards (China VI) implemented. Heavy truck restrictions in city center. Industrial upgrades mandated."},
	"2019-10-01": {"70th National Day", "Major celebrations with strict pollution controls. Factories shut down, traffic restricted. Showed 'parade blue' sky phenomenon."},
	"2020-02-01": {"COVID-19 lockdown", "Strict lockdown measures begin. Industrial activity ceased, traffic minimal. PM2.5 dropped 30-40% showing pollution sources."},
	"2020-04-08": {"Lockdown easing", "Gradual reopening begins. Factories restart operations. Pollution levels return but remain lower than pre-COVID baseline."},
	"2021-03-15": {"Sandstorm event", "Massive sandstorm from Mongolia hits Beijing. PM10 exceeded 8000 µg/m³. Worst sandstorm in a decade."},
	"2022-02-04": {"Winter Olympics start", "Beijing Winter Olympics opening ceremony. Strict pollution controls: factory shutdowns, vehicle bans. 'Olympic blue' achieved."},
	"2022-02-20": {"Winter Olympics end", "Olympics conclude successfully. Environmental measures proved effective. Set new standards for event pollution control."},
	"2024-10-01": {"75th National Day", "Celebration of 75th anniversary of PRC founding. Advanced pollution monitoring and control systems demonstrated progress."},
}

// DefaultEvents returns the built-in Beijing timeline.
func DefaultEvents() []EventMarker {
	events, _ := ParseEvents(defaultEvents)
	return events
}

// ParseEvents converts a date-keyed mapping into markers sorted by date.
// Keys that do not parse as dates are returned in skipped.
func ParseEvents(m map[string]EventText) (events []EventMarker, skipped []string) {
	for key, text := range m {
		day, ok := ParseDate(key)
		if !ok {
			skipped = append(skipped, key)
			continue
		}
		detail := text.Detail
		if detail == "" {
			detail = text.Short
		}
		events = append(events, EventMarker{Date: day, Short: text.Short, Detail: detail})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	sort.Strings(skipped)
	return events, skipped
}

// LoadEvents reads a YAML mapping of YYYY-MM-DD keys to {short, detail}.
func LoadEvents(path string) ([]EventMarker, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read events file: %w", err)
	}
	var m map[string]EventText
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("decode events yaml: %w", err)
	}
	events, skipped := ParseEvents(m)
	return events, skipped, nil
}

// EventsInRange returns markers whose date, taken as UTC midnight and
// re-expressed in the frame's zone, falls within the frame's coverage.
func EventsInRange(events []EventMarker, f Frame) []EventMarker {
	cov, ok := f.Coverage()
	if !ok {
		return nil
	}
	loc := f.Location()
	var out []EventMarker
	for _, e := range events {
		at := e.Date.In(loc)
		if !at.Before(cov.First) && !at.After(cov.Last) {
			out = append(out, e)
		}
	}
	return out
}

// EventImpact pairs a marker with the PM2.5 mean around it.
type EventImpact struct {
	Event   EventMarker `json:"event"`
	InRange bool        `json:"inRange"`
	// MeanPM25 is nil when no PM2.5 values fall inside the window.
	MeanPM25 *float64 `json:"meanPm25,omitempty"`
}

// EventImpacts averages PM2.5 over records whose calendar date is within
// days of each marker.
func EventImpacts(events []EventMarker, f Frame, days int) []EventImpact {
	in := make(map[string]bool)
	for _, e := range EventsInRange(events, f) {
		in[e.Day()] = true
	}
	out := make([]EventImpact, 0, len(events))
	for _, e := range events {
		lo := dateKey(e.Date.AddDate(0, 0, -days))
		hi := dateKey(e.Date.AddDate(0, 0, days))
		var sum float64
		var n int
		for _, r := range f.Records {
			k := dateKey(r.Timestamp)
			if k < lo || k > hi {
				continue
			}
			if v, ok := r.Values[PM25]; ok {
				sum += v
				n++
			}
		}
		impact := EventImpact{Event: e, InRange: in[e.Day()]}
		if n > 0 {
			m := sum / float64(n)
			impact.MeanPM25 = &m
		}
		out = append(out, impact)
	}
	return out
}

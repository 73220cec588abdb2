package httpapi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
)

// sessionRequest holds the form fields of a session-create request after
// defaults are applied.
type sessionRequest struct {
	Latitude  float64   `validate:"gte=-90,lte=90"`
	Longitude float64   `validate:"gte=-180,lte=180"`
	Start     time.Time `validate:"required"`
	End       time.Time `validate:"required,gtefield=Start"`
	Timezone  string

	OpenWeatherKey   string
	WAQIToken        string
	AirVisualKey     string
	IncludeSnapshots bool
}

func (r *sessionRequest) bind(c *fiber.Ctx, d Defaults) error {
	r.Latitude, r.Longitude = d.Latitude, d.Longitude
	r.Start, r.End = d.Start, d.End
	r.Timezone = d.Timezone
	r.IncludeSnapshots = true

	var err error
	if v := c.FormValue("latitude"); v != "" {
		if r.Latitude, err = strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return errors.New("latitude must be a number")
		}
	}
	if v := c.FormValue("longitude"); v != "" {
		if r.Longitude, err = strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return errors.New("longitude must be a number")
		}
	}
	if v := c.FormValue("start"); v != "" {
		if r.Start, err = parseDay(v); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}
	if v := c.FormValue("end"); v != "" {
		if r.End, err = parseDay(v); err != nil {
			return fmt.Errorf("end: %w", err)
		}
	}
	if v := strings.TrimSpace(c.FormValue("timezone")); v != "" {
		r.Timezone = v
	}
	if v := c.FormValue("include_snapshots"); v != "" {
		if r.IncludeSnapshots, err = strconv.ParseBool(v); err != nil {
			return errors.New("include_snapshots must be true or false")
		}
	}

	r.OpenWeatherKey = firstNonEmpty(c.FormValue("openweather_key"), d.OpenWeatherKey)
	r.WAQIToken = firstNonEmpty(c.FormValue("waqi_token"), d.WAQIToken)
	r.AirVisualKey = firstNonEmpty(c.FormValue("airvisual_key"), d.AirVisualKey)
	return nil
}

// rangeQuery is an optional inclusive calendar-date filter.
type rangeQuery struct {
	From time.Time
	To   time.Time `validate:"omitempty,gtefield=From"`
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	var err error
	if v := c.Query("from"); v != "" {
		if q.From, err = parseDay(v); err != nil {
			return fmt.Errorf("from: %w", err)
		}
	}
	if v := c.Query("to"); v != "" {
		if q.To, err = parseDay(v); err != nil {
			return fmt.Errorf("to: %w", err)
		}
	}
	return validate.Struct(q)
}

// apply filters f, defaulting open ends to the frame's coverage.
func (q rangeQuery) apply(f airquality.Frame) airquality.Frame {
	if q.From.IsZero() && q.To.IsZero() {
		return f
	}
	cov, ok := f.Coverage()
	if !ok {
		return f
	}
	from, to := q.From, q.To
	if from.IsZero() {
		from = cov.First
	}
	if to.IsZero() {
		to = cov.Last
	}
	return airquality.FilterDateRange(f, from, to)
}

// seriesQuery selects one pollutant (or aqi) and a smoothing window.
type seriesQuery struct {
	Range     rangeQuery
	Column    string `validate:"required"`
	Window    int    `validate:"gte=1,lte=8760"`
	Normalize bool
}

func (q *seriesQuery) bind(c *fiber.Ctx, defaultWindow int) error {
	if err := q.Range.bind(c); err != nil {
		return err
	}
	q.Column = seriesColumn(c.Query("pollutant", string(airquality.PM25)))
	q.Window = c.QueryInt("window", defaultWindow)
	q.Normalize = c.QueryBool("normalize", false)
	return nil
}

// groupQuery selects one pollutant, a calendar unit and an optional range.
type groupQuery struct {
	Range     rangeQuery
	Pollutant airquality.Pollutant `validate:"required"`
	By        string               `validate:"required,oneof=month year hour weekday"`
}

func (q *groupQuery) bind(c *fiber.Ctx) error {
	if err := q.Range.bind(c); err != nil {
		return err
	}
	p, ok := airquality.ParsePollutant(c.Query("pollutant", string(airquality.PM25)))
	if !ok {
		return errors.New("unknown pollutant")
	}
	q.Pollutant = p
	q.By = strings.ToLower(c.Query("by", string(airquality.ByMonth)))
	return nil
}

// seriesColumn returns the canonical pollutant name or "aqi"; anything else
// yields "".
func seriesColumn(s string) string {
	if airquality.NormalizeColumn(s) == airquality.ColAQI {
		return airquality.ColAQI
	}
	if p, ok := airquality.ParsePollutant(s); ok {
		return string(p)
	}
	return ""
}

// parseDay accepts YYYY-MM-DD and the other single-value formats the
// datetime resolver understands, and keeps only the calendar date.
func parseDay(s string) (time.Time, error) {
	t, ok := airquality.ParseDate(s)
	if !ok {
		return time.Time{}, errors.New("invalid date; use YYYY-MM-DD")
	}
	return t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

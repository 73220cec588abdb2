package httpapi

import (
	"bytes"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
)

// eventWindowDays is the half-width of the window around an event marker.
const eventWindowDays = 3

func (a *API) records(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var q rangeQuery
	if err := q.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	frame, resampled := airquality.ForRendering(q.apply(sess.Result.Frame), a.cfg.ResampleThreshold)
	return c.JSON(fiber.Map{
		"zone":      frame.Zone,
		"resampled": resampled,
		"count":     frame.Len(),
		"records":   frame.Records,
	})
}

func (a *API) series(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var q seriesQuery
	if err := q.bind(c, a.cfg.SmoothingWindow); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	frame := q.Range.apply(sess.Result.Frame)
	var raw []airquality.Point
	if q.Column == airquality.ColAQI {
		raw = airquality.AQISeries(frame)
	} else {
		raw = airquality.SeriesOf(frame, airquality.Pollutant(q.Column))
	}
	if raw == nil {
		raw = []airquality.Point{}
	}

	resp := fiber.Map{
		"pollutant": q.Column,
		"window":    q.Window,
		"raw":       raw,
		"smoothed":  airquality.Rolling(raw, q.Window, 1),
	}
	if q.Normalize {
		resp["normalized"] = airquality.Normalize(raw)
	}
	return c.JSON(resp)
}

func (a *API) groups(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var q groupQuery
	if err := q.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(fiber.Map{
		"pollutant": q.Pollutant,
		"by":        q.By,
		"groups":    airquality.GroupBy(q.Range.apply(sess.Result.Frame), q.Pollutant, airquality.GroupUnit(q.By)),
	})
}

func (a *API) heatmap(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	p, ok := airquality.ParsePollutant(c.Query("pollutant", string(airquality.PM25)))
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "unknown pollutant")
	}
	var q rangeQuery
	if err := q.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(fiber.Map{
		"pollutant": p,
		"cells":     airquality.Heatmap(q.apply(sess.Result.Frame), p),
	})
}

func (a *API) stats(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var q rangeQuery
	if err := q.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	frame := q.apply(sess.Result.Frame)

	resp := fiber.Map{
		"records":     frame.Len(),
		"summary":     airquality.Describe(frame),
		"quality":     airquality.Quality(frame),
		"correlation": airquality.Correlation(frame),
		"aqi":         airquality.AQIDistribution(frame),
		"sources":     airquality.SourceCounts(frame),
	}
	if cov, ok := frame.Coverage(); ok {
		resp["coverage"] = cov
	}
	if frame.Has(airquality.PM25) {
		resp["trend"] = airquality.YearOverYear(frame, airquality.PM25)
	}
	return c.JSON(resp)
}

func (a *API) events(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var q rangeQuery
	if err := q.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	frame := q.apply(sess.Result.Frame)

	return c.JSON(fiber.Map{
		"windowDays": eventWindowDays,
		"events":     airquality.EventImpacts(a.cfg.Events, frame, eventWindowDays),
		"inRange":    airquality.EventsInRange(a.cfg.Events, frame),
	})
}

func (a *API) exportRecords(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var q rangeQuery
	if err := q.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	var buf bytes.Buffer
	if err := airquality.WriteFrameCSV(&buf, q.apply(sess.Result.Frame)); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to export records")
	}
	c.Attachment("air_quality_records.csv")
	return c.Send(buf.Bytes())
}

func (a *API) exportStats(c *fiber.Ctx) error {
	sess, err := a.session(c)
	if err != nil {
		return err
	}
	var q rangeQuery
	if err := q.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	var buf bytes.Buffer
	if err := airquality.WriteStatsCSV(&buf, airquality.Describe(q.apply(sess.Result.Frame))); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to export statistics")
	}
	c.Attachment("air_quality_statistics.csv")
	return c.Send(buf.Bytes())
}

func aqiCategory(c *fiber.Ctx) error {
	v, err := strconv.Atoi(c.Params("value"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "aqi value must be an integer")
	}
	return c.JSON(fiber.Map{
		"value":    v,
		"category": airquality.AQICategory(v),
	})
}

package airquality

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"
)

// WriteFrameCSV writes f as comma-separated text: datetime, source, the
// present pollutant columns in export order, aqi and temperature when present.
func WriteFrameCSV(w io.Writer, f Frame) error {
	cols := f.Available()
	hasAQI := f.HasAQI()
	hasTemp := false
	for _, r := range f.Records {
		if r.Temperature != nil {
			hasTemp = true
			break
		}
	}

	header := []string{ColDatetime, ColSource}
	for _, p := range cols {
		header = append(header, string(p))
	}
	if hasAQI {
		header = append(header, ColAQI)
	}
	if hasTemp {
		header = append(header, ColTemperature)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range f.Records {
		row := make([]string, 0, len(header))
		ts := ""
		if !r.Timestamp.IsZero() {
			ts = r.Timestamp.Format(time.RFC3339)
		}
		row = append(row, ts, r.Source)
		for _, p := range cols {
			if v, ok := r.Values[p]; ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "")
			}
		}
		if hasAQI {
			if r.AQI != nil {
				row = append(row, strconv.Itoa(*r.AQI))
			} else {
				row = append(row, "")
			}
		}
		if hasTemp {
			if r.Temperature != nil {
				row = append(row, formatFloat(*r.Temperature))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStatsCSV writes the Describe table, one row per column, values
// rounded to two decimals.
func WriteStatsCSV(w io.Writer, summaries []Summary) error {
	cw := csv.NewWriter(w)
	header := []string{"column", "count", "mean", "std", "min", "p25", "median", "p75", "max"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range summaries {
		std := ""
		if s.Std != nil {
			std = formatRounded(*s.Std)
		}
		row := []string{
			s.Column,
			strconv.Itoa(s.Count),
			formatRounded(s.Mean),
			std,
			formatRounded(s.Min),
			formatRounded(s.P25),
			formatRounded(s.Median),
			formatRounded(s.P75),
			formatRounded(s.Max),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatRounded(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

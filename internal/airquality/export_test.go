package airquality

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteFrameCSVColumnOrder(t *testing.T) {
	r := Record{Timestamp: at(5), Source: "OpenWeather API"}
	r.SetValue(CO, 300.5)
	r.SetValue(PM25, 12)
	r.SetValue(O3, 40)
	aqi := 2
	r.AQI = &aqi
	f := Merge(batch("x", PriorityHistory, r, rec(at(6), "CSV: a.csv", 8)))

	var buf bytes.Buffer
	if err := WriteFrameCSV(&buf, f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "datetime,source,pm2.5,o3,co,aqi" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != "2020-01-01T05:00:00Z,OpenWeather API,12,40,300.5,2" {
		t.Fatalf("unexpected row %q", lines[1])
	}
	if lines[2] != "2020-01-01T06:00:00Z,CSV: a.csv,8,,," {
		t.Fatalf("unexpected row %q", lines[2])
	}
}

func TestWriteStatsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatsCSV(&buf, Describe(daily(1, 2, 4))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "column,count,mean,std,min,p25,median,p75,max" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != "pm2.5,3,2.33,1.53,1,1.5,2,3,4" {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

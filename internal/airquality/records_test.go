package airquality

import (
	"math"
	"testing"
	"time"
)

func TestBatchFromTable(t *testing.T) {
	tbl := Table{
		Columns: []string{"Date", "PM2.5", "NO2", "AQI", "Temp"},
		Rows: [][]string{
			{"2015-03-01", "35", "-4", "3.9", "12.5"},
			{"garbage", "abc", "", "", "NaN"},
		},
	}
	b := BatchFromTable(tbl, "CSV: x.csv", PriorityUpload)

	if !b.Timeline || b.Strategy != "date" {
		t.Fatalf("expected date timeline, got %v/%q", b.Timeline, b.Strategy)
	}
	if len(b.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(b.Records))
	}

	first := b.Records[0]
	if !first.Timestamp.Equal(time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", first.Timestamp)
	}
	if v, ok := first.Value(PM25); !ok || v != 35 {
		t.Fatalf("expected pm2.5 35, got %v", v)
	}
	if _, ok := first.Value(NO2); ok {
		t.Fatalf("expected negative no2 to be absent")
	}
	if first.AQI == nil || *first.AQI != 3 {
		t.Fatalf("expected truncated aqi 3, got %v", first.AQI)
	}
	if first.Temperature == nil || *first.Temperature != 12.5 {
		t.Fatalf("expected temperature 12.5")
	}

	second := b.Records[1]
	if !second.Timestamp.IsZero() || len(second.Values) != 0 || second.AQI != nil || second.Temperature != nil {
		t.Fatalf("expected an empty unparsed record, got %+v", second)
	}
	if second.Source != "CSV: x.csv" {
		t.Fatalf("unexpected source %q", second.Source)
	}
}

func TestAQIFromFloat(t *testing.T) {
	cases := []struct {
		in   float64
		want int
		ok   bool
	}{
		{3.9, 3, true},
		{7, 7, true},
		{0, 0, true},
		{-1, 0, false},
		{1e300, 0, false},
		{math.Inf(1), 0, false},
		{math.NaN(), 0, false},
	}
	for _, c := range cases {
		got, ok := AQIFromFloat(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("AQIFromFloat(%v): expected %d/%v, got %d/%v", c.in, c.want, c.ok, got, ok)
		}
	}

	tbl := Table{
		Columns: []string{"date", "aqi"},
		Rows:    [][]string{{"2015-03-01", "1e300"}},
	}
	b := BatchFromTable(tbl, "CSV: x.csv", PriorityUpload)
	if b.Records[0].AQI != nil {
		t.Fatalf("expected huge aqi to be absent, got %d", *b.Records[0].AQI)
	}
}

func TestParseNumber(t *testing.T) {
	for in, want := range map[string]float64{"1.5": 1.5, " 7 ": 7, "-2": -2} {
		if got, ok := ParseNumber(in); !ok || got != want {
			t.Fatalf("ParseNumber(%q): expected %v, got %v (%v)", in, want, got, ok)
		}
	}
	for _, in := range []string{"", "NA", "NaN", "Inf", "1,5"} {
		if _, ok := ParseNumber(in); ok {
			t.Fatalf("ParseNumber(%q): expected absent", in)
		}
	}
}

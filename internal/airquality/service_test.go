package airquality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/air-quality-timeline/internal/cache"
)

type fakeFetcher struct {
	name     string
	priority Priority
	batch    Batch
	err      error
	calls    int
	cacheKey string
}

func (f *fakeFetcher) Name() string       { return f.name }
func (f *fakeFetcher) Priority() Priority { return f.priority }

func (f *fakeFetcher) Fetch(context.Context, Query) (Batch, error) {
	f.calls++
	return f.batch, f.err
}

// cachedFetcher is a fakeFetcher that opts into memoization.
type cachedFetcher struct{ *fakeFetcher }

func (f cachedFetcher) CacheKey(Query) string { return f.cacheKey }

func stateOf(t *testing.T, r Report, source string) SourceStatus {
	t.Helper()
	for _, s := range r.Sources {
		if s.Source == source {
			return s
		}
	}
	t.Fatalf("no status for %q in %+v", source, r.Sources)
	return SourceStatus{}
}

func TestRunMergesByPriority(t *testing.T) {
	upload := &fakeFetcher{name: "CSV: a.csv", priority: PriorityUpload,
		batch: batch("CSV: a.csv", PriorityUpload, rec(at(0), "CSV: a.csv", 50), rec(at(1), "CSV: a.csv", 40))}
	history := &fakeFetcher{name: "openweather", priority: PriorityHistory,
		batch: batch("OpenWeather API", PriorityHistory, rec(at(0), "OpenWeather API", 62))}

	svc := NewService(nil, nil)
	res, err := svc.Run(context.Background(), Request{Fetchers: []Fetcher{history, upload}, Timezone: "UTC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Frame.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", res.Frame.Len())
	}
	if v, _ := res.Frame.Records[0].Value(PM25); v != 62 {
		t.Fatalf("expected API value to win, got %v", v)
	}
	if res.Report.Merge.Duplicates != 1 {
		t.Fatalf("expected 1 duplicate, got %d", res.Report.Merge.Duplicates)
	}
	if res.Report.Sources[0].Source != "CSV: a.csv" {
		t.Fatalf("expected uploads to run first, got %q", res.Report.Sources[0].Source)
	}
}

func TestRunNoData(t *testing.T) {
	skipped := &fakeFetcher{name: "openweather", priority: PriorityHistory, err: ErrNotConfigured}
	empty := &fakeFetcher{name: "waqi", priority: PrioritySnapshot, err: fmt.Errorf("waqi: %w", ErrNoData)}

	_, err := NewService(nil, nil).Run(context.Background(), Request{Fetchers: []Fetcher{skipped, empty}})
	se, ok := AsSessionError(err)
	if !ok || se.Kind != KindNoData {
		t.Fatalf("expected no_data session error, got %v", err)
	}
}

func TestRunSchemaMissing(t *testing.T) {
	noTime := &fakeFetcher{name: "CSV: a.csv", priority: PriorityUpload, batch: BatchFromTable(Table{
		Columns: []string{"Station", "PM2.5"},
		Rows:    [][]string{{"A", "10"}},
	}, "CSV: a.csv", PriorityUpload)}

	_, err := NewService(nil, nil).Run(context.Background(), Request{Fetchers: []Fetcher{noTime}})
	se, ok := AsSessionError(err)
	if !ok || se.Kind != KindSchemaMissing {
		t.Fatalf("expected schema_missing session error, got %v", err)
	}
	if !strings.Contains(se.Error(), "station, pm2.5") {
		t.Fatalf("expected present columns in message, got %q", se.Error())
	}
}

func TestRunNoPollutantColumns(t *testing.T) {
	onlyTime := &fakeFetcher{name: "CSV: a.csv", priority: PriorityUpload, batch: BatchFromTable(Table{
		Columns: []string{"date", "station"},
		Rows:    [][]string{{"2020-01-01", "A"}},
	}, "CSV: a.csv", PriorityUpload)}

	_, err := NewService(nil, nil).Run(context.Background(), Request{Fetchers: []Fetcher{onlyTime}})
	se, ok := AsSessionError(err)
	if !ok || se.Kind != KindSchemaMissing {
		t.Fatalf("expected schema_missing session error, got %v", err)
	}
}

func TestRunEmptyAfterParse(t *testing.T) {
	bad := &fakeFetcher{name: "CSV: a.csv", priority: PriorityUpload, batch: BatchFromTable(Table{
		Columns: []string{"date", "pm2.5"},
		Rows:    [][]string{{"never", "10"}, {"", "12"}},
	}, "CSV: a.csv", PriorityUpload)}

	_, err := NewService(nil, nil).Run(context.Background(), Request{Fetchers: []Fetcher{bad}})
	se, ok := AsSessionError(err)
	if !ok || se.Kind != KindEmptyAfterParse {
		t.Fatalf("expected empty_after_parse session error, got %v", err)
	}
}

func TestRunTimezoneFallback(t *testing.T) {
	upload := &fakeFetcher{name: "CSV: a.csv", priority: PriorityUpload,
		batch: batch("CSV: a.csv", PriorityUpload, rec(at(3), "CSV: a.csv", 1))}

	res, err := NewService(nil, nil).Run(context.Background(), Request{Fetchers: []Fetcher{upload}, Timezone: "Nowhere/Land"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Report.Timezone != "UTC" || res.Frame.Zone != "" {
		t.Fatalf("expected UTC frame, got %q/%q", res.Report.Timezone, res.Frame.Zone)
	}
	if !res.Frame.Records[0].Timestamp.Equal(at(3)) {
		t.Fatalf("timestamps must be unchanged")
	}
	if len(res.Report.Warnings) == 0 {
		t.Fatalf("expected a timezone warning")
	}
}

func TestRunReportsSourceStates(t *testing.T) {
	upload := &fakeFetcher{name: "CSV: a.csv", priority: PriorityUpload,
		batch: batch("CSV: a.csv", PriorityUpload, rec(at(0), "CSV: a.csv", 1))}
	partial := batch("OpenWeather API", PriorityHistory, rec(at(5), "OpenWeather API", 2))
	partial.Missing = []Window{{Start: at(0), End: at(1)}}
	history := &fakeFetcher{name: "openweather", priority: PriorityHistory, batch: partial}
	waqi := &fakeFetcher{name: "waqi", priority: PrioritySnapshot, err: fmt.Errorf("waqi: %w", ErrUnauthorized)}
	airvisual := &fakeFetcher{name: "airvisual", priority: PrioritySnapshot, err: errors.New("boom")}

	res, err := NewService(nil, nil).Run(context.Background(), Request{Fetchers: []Fetcher{upload, history, waqi, airvisual}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s := stateOf(t, res.Report, "CSV: a.csv"); s.State != StateOK || s.Records != 1 {
		t.Fatalf("unexpected upload status %+v", s)
	}
	if s := stateOf(t, res.Report, "OpenWeather API"); s.State != StatePartial || len(s.Missing) != 1 {
		t.Fatalf("unexpected history status %+v", s)
	}
	if s := stateOf(t, res.Report, "waqi"); s.State != StateFailed || !strings.Contains(s.Message, "credential") {
		t.Fatalf("unexpected waqi status %+v", s)
	}
	if s := stateOf(t, res.Report, "airvisual"); s.State != StateFailed {
		t.Fatalf("unexpected airvisual status %+v", s)
	}
	if res.Frame.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", res.Frame.Len())
	}
}

func TestRunCachesCompleteBatches(t *testing.T) {
	c := cache.New[string, Batch](time.Hour, 0, nil)
	svc := NewService(c, nil)

	complete := cachedFetcher{&fakeFetcher{name: "openweather", priority: PriorityHistory, cacheKey: "k1",
		batch: batch("OpenWeather API", PriorityHistory, rec(at(0), "OpenWeather API", 1))}}
	for i := 0; i < 2; i++ {
		res, err := svc.Run(context.Background(), Request{Fetchers: []Fetcher{complete}})
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
		if cached := res.Report.Sources[0].Cached; cached != (i == 1) {
			t.Fatalf("run %d: expected cached=%v", i, i == 1)
		}
	}
	if complete.calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", complete.calls)
	}

	partialBatch := batch("OpenWeather API", PriorityHistory, rec(at(0), "OpenWeather API", 1))
	partialBatch.Missing = []Window{{Start: at(1), End: at(2)}}
	partial := cachedFetcher{&fakeFetcher{name: "openweather", priority: PriorityHistory, cacheKey: "k2", batch: partialBatch}}
	for i := 0; i < 2; i++ {
		if _, err := svc.Run(context.Background(), Request{Fetchers: []Fetcher{partial}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if partial.calls != 2 {
		t.Fatalf("expected partial results to be refetched, got %d calls", partial.calls)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{name: "x", batch: batch("x", PriorityUpload, rec(at(0), "x", 1))}
	if _, err := NewService(nil, nil).Run(ctx, Request{Fetchers: []Fetcher{f}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.calls != 0 {
		t.Fatalf("expected no fetch after cancellation")
	}
}

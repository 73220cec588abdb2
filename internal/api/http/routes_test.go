package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
	"github.com/i474232898/air-quality-timeline/internal/store"
)

const sampleCSV = `date,PM2.5,PM10,AQI
2015-03-01,35,60,2
2015-03-02,80,120,3
2015-03-03,150,200,4
`

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	svc := airquality.NewService(nil, nil)
	sessions := store.NewMemoryStore(10, time.Hour, nil)
	api := NewAPI(svc, sessions, Config{
		Defaults: Defaults{
			Latitude:  39.9042,
			Longitude: 116.4074,
			Start:     time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
			End:       time.Date(2015, 12, 31, 0, 0, 0, 0, time.UTC),
			Timezone:  "UTC",
		},
		Events: airquality.DefaultEvents(),
	}, nil)
	RegisterRoutes(app, api)
	return app
}

func sessionForm(t *testing.T, fields map[string]string, csv string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if csv != "" {
		part, err := w.CreateFormFile("file", "beijing.csv")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := io.WriteString(part, csv); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func createSession(t *testing.T, app *fiber.App, fields map[string]string, csv string) (int, map[string]any) {
	t.Helper()

	body, contentType := sessionForm(t, fields, csv)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", body)
	req.Header.Set("Content-Type", contentType)
	resp, data := do(t, app, req)

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode response %q: %v", data, err)
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestCreateSessionFromUpload(t *testing.T) {
	app := newTestApp(t)

	status, out := createSession(t, app, map[string]string{"include_snapshots": "false"}, sampleCSV)
	if status != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %v", http.StatusCreated, status, out)
	}
	id, _ := out["id"].(string)
	if id == "" {
		t.Fatalf("expected a session id, got %v", out)
	}
	if out["records"].(float64) != 3 {
		t.Fatalf("expected 3 records, got %v", out["records"])
	}

	report := out["report"].(map[string]any)
	sources := report["sources"].([]any)
	states := map[string]string{}
	for _, s := range sources {
		m := s.(map[string]any)
		states[m["source"].(string)] = m["state"].(string)
	}
	if states["CSV: beijing.csv"] != "ok" {
		t.Fatalf("expected upload ok, got %v", states)
	}
	if states["openweather"] != "skipped" {
		t.Fatalf("expected history source skipped without a key, got %v", states)
	}

	resp, data := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/records?from=2015-03-02&to=2015-03-03", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var records struct {
		Count     int  `json:"count"`
		Resampled bool `json:"resampled"`
	}
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if records.Count != 2 || records.Resampled {
		t.Fatalf("expected 2 unresampled records, got %+v", records)
	}

	resp, data = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/series?pollutant=pm25&window=2", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, resp.StatusCode, data)
	}
	var series struct {
		Pollutant string             `json:"pollutant"`
		Smoothed  []airquality.Point `json:"smoothed"`
	}
	if err := json.Unmarshal(data, &series); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	if series.Pollutant != "pm2.5" || len(series.Smoothed) != 3 || series.Smoothed[2].Value != 115 {
		t.Fatalf("unexpected series %+v", series)
	}

	resp, data = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/export/records.csv", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("expected csv content type, got %q", resp.Header.Get("Content-Type"))
	}
	if !strings.HasPrefix(string(data), "datetime,source,pm2.5,pm10,aqi\n") {
		t.Fatalf("unexpected csv header in %q", data)
	}

	for _, path := range []string{"/groups?by=month", "/heatmap", "/stats", "/events", "/export/stats.csv"} {
		resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+path, nil))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusOK, resp.StatusCode)
		}
	}
}

func TestExportsFollowDateRange(t *testing.T) {
	app := newTestApp(t)
	_, out := createSession(t, app, map[string]string{"include_snapshots": "false"}, sampleCSV)
	id := out["id"].(string)

	resp, data := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/export/records.csv?from=2015-03-02&to=2015-03-02", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and 1 row, got %q", data)
	}
	if !strings.HasPrefix(lines[1], "2015-03-02T00:00:00Z,CSV: beijing.csv,80,") {
		t.Fatalf("unexpected row %q", lines[1])
	}

	resp, data = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/export/stats.csv?from=2015-03-02", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	lines = strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[1], "pm2.5,2,115,") {
		t.Fatalf("expected pm2.5 stats over 2 rows, got %q", data)
	}

	resp, data = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/groups?by=year&to=2015-03-01", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var groups struct {
		Groups []airquality.Group `json:"groups"`
	}
	if err := json.Unmarshal(data, &groups); err != nil {
		t.Fatalf("decode groups: %v", err)
	}
	if len(groups.Groups) != 1 || groups.Groups[0].Count != 1 || groups.Groups[0].Mean != 35 {
		t.Fatalf("expected one 2015 group over 1 record, got %+v", groups.Groups)
	}

	for _, path := range []string{
		"/export/records.csv?from=2015-03-03&to=2015-03-01",
		"/export/stats.csv?from=bogus",
		"/heatmap?from=2015-03-03&to=2015-03-01",
		"/events?to=bogus",
	} {
		resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+path, nil))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestCreateSessionWithoutSources(t *testing.T) {
	app := newTestApp(t)

	status, out := createSession(t, app, map[string]string{"include_snapshots": "false"}, "")
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, status)
	}
	if out["kind"] != string(airquality.KindNoData) {
		t.Fatalf("expected kind no_data, got %v", out["kind"])
	}
}

func TestCreateSessionWithoutDatetime(t *testing.T) {
	app := newTestApp(t)

	status, out := createSession(t, app, nil, "station,pm2.5\nA,10\n")
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, status)
	}
	if out["kind"] != string(airquality.KindSchemaMissing) {
		t.Fatalf("expected kind schema_missing, got %v", out["kind"])
	}
	cols, _ := out["columns"].([]any)
	if len(cols) != 2 {
		t.Fatalf("expected the present columns to be listed, got %v", out["columns"])
	}
}

func TestCreateSessionValidation(t *testing.T) {
	app := newTestApp(t)

	cases := map[string]map[string]string{
		"bad start":      {"start": "not-a-date"},
		"inverted range": {"start": "2015-02-01", "end": "2015-01-01"},
		"bad latitude":   {"latitude": "95"},
		"bad flag":       {"include_snapshots": "maybe"},
	}
	for name, fields := range cases {
		t.Run(name, func(t *testing.T) {
			status, _ := createSession(t, app, fields, sampleCSV)
			if status != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, status)
			}
		})
	}
}

func TestViewValidation(t *testing.T) {
	app := newTestApp(t)
	_, out := createSession(t, app, map[string]string{"include_snapshots": "false"}, sampleCSV)
	id := out["id"].(string)

	for _, path := range []string{
		"/series?pollutant=nox",
		"/series?window=0",
		"/groups?by=decade",
		"/heatmap?pollutant=dust",
		"/records?from=2015-03-05&to=2015-03-01",
	} {
		resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+path, nil))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestUnknownSession(t *testing.T) {
	app := newTestApp(t)
	resp, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope/records", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestAQICategory(t *testing.T) {
	app := newTestApp(t)

	resp, data := do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/aqi/3", nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var out struct {
		Category airquality.Category `json:"category"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Category.Label != "Moderate" {
		t.Fatalf("expected Moderate, got %q", out.Category.Label)
	}

	resp, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/aqi/high", nil))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
)

// OpenWeatherSource is the source tag of OpenWeather history records.
const OpenWeatherSource = "OpenWeather API"

// DefaultChunkDays bounds each history request to the provider's limits.
const DefaultChunkDays = 180

// OpenWeatherProvider fetches air-pollution history from OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	chunk   time.Duration
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts Options, logger *zap.Logger) *OpenWeatherProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = withDefaults(opts,
		"https://api.openweathermap.org/data/2.5/air_pollution/history",
		60*time.Second,
		RetryPolicy{Attempts: 3, Backoff: 3 * time.Second, RateLimitBackoff: 5 * time.Second},
	)
	if opts.ChunkDays <= 0 {
		opts.ChunkDays = DefaultChunkDays
	}

	return &OpenWeatherProvider{
		name:    "openweather",
		apiKey:  apiKey,
		baseURL: opts.BaseURL,
		chunk:   time.Duration(opts.ChunkDays) * 24 * time.Hour,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Timeout: opts.Timeout,
			Retry:   opts.Retry,
			Sleep:   opts.Sleep,
		},
		circuit: breakerFor(opts, "openweather", logger),
		logger:  logger.With(zap.String("provider", "openweather")),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Priority() airquality.Priority {
	return airquality.PriorityHistory
}

func (p *OpenWeatherProvider) CacheKey(q airquality.Query) string {
	return q.Key() + "|" + fingerprint(p.apiKey)
}

// Chunks splits [start 00:00:00, end 23:59:59] UTC into consecutive windows of
// at most size. Each window starts one second after the previous one ends.
func Chunks(start, end time.Time, size time.Duration) []airquality.Window {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, time.UTC)
	if to.Before(from) || size < time.Second {
		return nil
	}

	var out []airquality.Window
	for cur := from; !cur.After(to); {
		wEnd := cur.Add(size - time.Second)
		if wEnd.After(to) {
			wEnd = to
		}
		out = append(out, airquality.Window{Start: cur, End: wEnd})
		cur = wEnd.Add(time.Second)
	}
	return out
}

type owHistoryPayload struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			AQI *int `json:"aqi"`
		} `json:"main"`
		Components map[string]*float64 `json:"components"`
	} `json:"list"`
}

var owComponents = map[string]airquality.Pollutant{
	"pm2_5": airquality.PM25,
	"pm10":  airquality.PM10,
	"no2":   airquality.NO2,
	"so2":   airquality.SO2,
	"co":    airquality.CO,
	"o3":    airquality.O3,
}

// Fetch requests every chunk of [q.Start, q.End] in order. A chunk that uses
// up its retry budget is recorded in Batch.Missing and the next chunk is
// requested. A rejected credential or any other non-2xx status aborts.
func (p *OpenWeatherProvider) Fetch(ctx context.Context, q airquality.Query) (airquality.Batch, error) {
	if p.apiKey == "" {
		return airquality.Batch{}, airquality.ErrNotConfigured
	}
	windows := Chunks(q.Start, q.End, p.chunk)
	if len(windows) == 0 {
		return airquality.Batch{}, fmt.Errorf("openweather: invalid date range %s to %s",
			q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"))
	}

	batch := airquality.Batch{
		Source:   OpenWeatherSource,
		Priority: airquality.PriorityHistory,
		Timeline: true,
		Strategy: "unix-epoch",
		Columns:  []string{"datetime", "aqi", "pm2.5", "pm10", "no2", "so2", "co", "o3"},
	}

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return airquality.Batch{}, err
		}

		buildRequest := func(ctx context.Context) (*http.Request, error) {
			values := url.Values{}
			values.Set("lat", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
			values.Set("lon", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
			values.Set("start", strconv.FormatInt(w.Start.Unix(), 10))
			values.Set("end", strconv.FormatInt(w.End.Unix(), 10))
			values.Set("appid", p.apiKey)

			u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
			return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		}

		var payload owHistoryPayload
		err := getJSON(ctx, p.name, p.httpCfg, p.circuit, buildRequest, &payload)
		switch {
		case err == nil:
			batch.Records = append(batch.Records, p.toRecords(payload)...)
		case errors.Is(err, airquality.ErrChunkExhausted):
			p.logger.Warn("history chunk unavailable",
				zap.Time("start", w.Start),
				zap.Time("end", w.End),
				zap.Error(err))
			batch.Missing = append(batch.Missing, w)
		default:
			return airquality.Batch{}, err
		}
	}

	if len(batch.Records) == 0 {
		return batch, fmt.Errorf("openweather: %w", airquality.ErrNoData)
	}
	return batch, nil
}

func (p *OpenWeatherProvider) toRecords(payload owHistoryPayload) []airquality.Record {
	out := make([]airquality.Record, 0, len(payload.List))
	for _, entry := range payload.List {
		rec := airquality.Record{
			Timestamp: time.Unix(entry.Dt, 0).UTC(),
			Source:    OpenWeatherSource,
			AQI:       entry.Main.AQI,
		}
		for key, pol := range owComponents {
			if v := entry.Components[key]; v != nil {
				rec.SetValue(pol, *v)
			}
		}
		out = append(out, rec)
	}
	return out
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
	"github.com/i474232898/air-quality-timeline/internal/common"
)

// WAQISource is the source tag of WAQI snapshot records.
const WAQISource = "WAQI API"

// WAQIProvider reads the current station feed of the World Air Quality Index.
type WAQIProvider struct {
	name    string
	token   string
	city    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
	logger  *zap.Logger
}

func NewWAQIProvider(client *http.Client, token, city string, opts Options, logger *zap.Logger) *WAQIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = withDefaults(opts, "https://api.waqi.info/feed", 10*time.Second, RetryPolicy{Attempts: 1})

	return &WAQIProvider{
		name:    "waqi",
		token:   token,
		city:    city,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Timeout: opts.Timeout,
			Retry:   RetryPolicy{Attempts: 1},
		},
		circuit: breakerFor(opts, "waqi", logger),
		now:     opts.Now,
		logger:  logger,
	}
}

func (p *WAQIProvider) Name() string {
	return p.name
}

func (p *WAQIProvider) Priority() airquality.Priority {
	return airquality.PrioritySnapshot
}

func (p *WAQIProvider) CacheKey(airquality.Query) string {
	return strings.ToLower(p.city) + "|" + fingerprint(p.token)
}

type waqiPayload struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type waqiData struct {
	AQI  json.RawMessage `json:"aqi"`
	IAQI map[string]struct {
		V *float64 `json:"v"`
	} `json:"iaqi"`
}

var waqiComponents = map[string]airquality.Pollutant{
	"pm25": airquality.PM25,
	"pm10": airquality.PM10,
	"no2":  airquality.NO2,
	"so2":  airquality.SO2,
	"co":   airquality.CO,
	"o3":   airquality.O3,
}

// Fetch performs one request and returns a single record stamped with the
// current instant. Failures are not retried.
func (p *WAQIProvider) Fetch(ctx context.Context, _ airquality.Query) (airquality.Batch, error) {
	if p.token == "" {
		return airquality.Batch{}, airquality.ErrNotConfigured
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("token", p.token)
		u := fmt.Sprintf("%s/%s/?%s", p.baseURL, url.PathEscape(strings.ToLower(p.city)), values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	var payload waqiPayload
	if err := getJSON(ctx, p.name, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return airquality.Batch{}, fmt.Errorf("waqi: %w", err)
	}

	if payload.Status != "ok" {
		msg := rawMessage(payload.Data)
		if common.HasAny(strings.ToLower(msg), "invalid key", "unauthorized", "invalid token") {
			return airquality.Batch{}, fmt.Errorf("waqi: %s: %w", msg, airquality.ErrUnauthorized)
		}
		return airquality.Batch{}, fmt.Errorf("waqi: status %q: %s", payload.Status, msg)
	}

	var data waqiData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return airquality.Batch{}, fmt.Errorf("waqi: decode data: %w", err)
	}

	rec := airquality.Record{
		Timestamp: p.now().UTC(),
		Source:    WAQISource,
	}
	var aqi float64
	if err := json.Unmarshal(data.AQI, &aqi); err == nil {
		if a, ok := airquality.AQIFromFloat(aqi); ok {
			rec.AQI = &a
		}
	}
	for key, pol := range waqiComponents {
		if c, ok := data.IAQI[key]; ok && c.V != nil {
			rec.SetValue(pol, *c.V)
		}
	}

	p.logger.Debug("snapshot fetched", zap.String("provider", p.name), zap.Bool("aqi", rec.AQI != nil))

	return airquality.Batch{
		Source:   WAQISource,
		Priority: airquality.PrioritySnapshot,
		Records:  []airquality.Record{rec},
		Timeline: true,
		Strategy: "snapshot",
		Columns:  []string{"datetime", "aqi", "pm2.5", "pm10", "no2", "so2", "co", "o3"},
	}, nil
}

// rawMessage renders a provider error payload that may be a string or an
// object with a message field.
func rawMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	if len(raw) == 0 {
		return "unknown error"
	}
	return string(raw)
}

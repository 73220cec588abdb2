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

// AirVisualSource is the source tag of AirVisual snapshot records.
const AirVisualSource = "AirVisual API"

// Place identifies a city for the AirVisual city endpoint.
type Place struct {
	City    string
	State   string
	Country string
}

// AirVisualProvider reads the current city measurement from IQAir AirVisual.
type AirVisualProvider struct {
	name    string
	apiKey  string
	place   Place
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
	logger  *zap.Logger
}

func NewAirVisualProvider(client *http.Client, apiKey string, place Place, opts Options, logger *zap.Logger) *AirVisualProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = withDefaults(opts, "https://api.airvisual.com/v2/city", 10*time.Second, RetryPolicy{Attempts: 1})

	return &AirVisualProvider{
		name:    "airvisual",
		apiKey:  apiKey,
		place:   place,
		baseURL: opts.BaseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Timeout: opts.Timeout,
			Retry:   RetryPolicy{Attempts: 1},
		},
		circuit: breakerFor(opts, "airvisual", logger),
		now:     opts.Now,
		logger:  logger,
	}
}

func (p *AirVisualProvider) Name() string {
	return p.name
}

func (p *AirVisualProvider) Priority() airquality.Priority {
	return airquality.PrioritySnapshot
}

func (p *AirVisualProvider) CacheKey(airquality.Query) string {
	return strings.ToLower(p.place.City+"|"+p.place.State+"|"+p.place.Country) + "|" + fingerprint(p.apiKey)
}

type airVisualPayload struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type concentration struct {
	Conc *float64 `json:"conc"`
}

type airVisualData struct {
	Current struct {
		Pollution struct {
			AQIUS *int           `json:"aqius"`
			P2    *concentration `json:"p2"`
			P1    *concentration `json:"p1"`
			N2    *concentration `json:"n2"`
			S2    *concentration `json:"s2"`
			CO    *concentration `json:"co"`
			O3    *concentration `json:"o3"`
		} `json:"pollution"`
	} `json:"current"`
}

// Fetch performs one request and returns a single record stamped with the
// current instant. Failures are not retried.
func (p *AirVisualProvider) Fetch(ctx context.Context, _ airquality.Query) (airquality.Batch, error) {
	if p.apiKey == "" {
		return airquality.Batch{}, airquality.ErrNotConfigured
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("city", p.place.City)
		values.Set("state", p.place.State)
		values.Set("country", p.place.Country)
		values.Set("key", p.apiKey)
		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	var payload airVisualPayload
	if err := getJSON(ctx, p.name, p.httpCfg, p.circuit, buildRequest, &payload); err != nil {
		return airquality.Batch{}, fmt.Errorf("airvisual: %w", err)
	}

	if payload.Status != "success" {
		msg := rawMessage(payload.Data)
		if common.HasAny(strings.ToLower(msg), "api_key", "permission_denied") {
			return airquality.Batch{}, fmt.Errorf("airvisual: %s: %w", msg, airquality.ErrUnauthorized)
		}
		return airquality.Batch{}, fmt.Errorf("airvisual: status %q: %s", payload.Status, msg)
	}

	var data airVisualData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return airquality.Batch{}, fmt.Errorf("airvisual: decode data: %w", err)
	}
	pol := data.Current.Pollution

	rec := airquality.Record{
		Timestamp: p.now().UTC(),
		Source:    AirVisualSource,
		AQI:       pol.AQIUS,
	}
	for key, c := range map[airquality.Pollutant]*concentration{
		airquality.PM25: pol.P2,
		airquality.PM10: pol.P1,
		airquality.NO2:  pol.N2,
		airquality.SO2:  pol.S2,
		airquality.CO:   pol.CO,
		airquality.O3:   pol.O3,
	} {
		if c != nil && c.Conc != nil {
			rec.SetValue(key, *c.Conc)
		}
	}

	p.logger.Debug("snapshot fetched", zap.String("provider", p.name), zap.Bool("aqi", rec.AQI != nil))

	return airquality.Batch{
		Source:   AirVisualSource,
		Priority: airquality.PrioritySnapshot,
		Records:  []airquality.Record{rec},
		Timeline: true,
		Strategy: "snapshot",
		Columns:  []string{"datetime", "aqi", "pm2.5", "pm10"},
	}, nil
}

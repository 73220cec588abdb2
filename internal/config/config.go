package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port     string
	LogLevel string

	OpenWeatherAPIKey string
	WAQIToken         string
	AirVisualAPIKey   string
	GeocoderAPIKey    string

	// Default place for sessions that do not name one.
	Latitude    float64
	Longitude   float64
	HasLocation bool // LATITUDE and LONGITUDE were both set
	City        string
	State       string
	Country     string

	StartDate time.Time
	EndDate   time.Time

	DisplayTimezone string

	HistoryTimeout   time.Duration
	SnapshotTimeout  time.Duration
	HistoryChunkDays int

	CacheTTL        time.Duration
	SessionMaxAge   time.Duration
	SessionMaxCount int
	JanitorInterval time.Duration

	EventsFile        string
	ResampleThreshold int
	SmoothingWindow   int
	UploadMaxBytes    int
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv(time.Now)
}

// FromEnv reads configuration from the process environment only.
// now supplies the default end date.
func FromEnv(now func() time.Time) (*AppConfig, error) {
	cfg := &AppConfig{
		Port:              getenvDefault("PORT", "8080"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		OpenWeatherAPIKey: strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY")),
		WAQIToken:         strings.TrimSpace(os.Getenv("WAQI_TOKEN")),
		AirVisualAPIKey:   strings.TrimSpace(os.Getenv("AIRVISUAL_API_KEY")),
		GeocoderAPIKey:    strings.TrimSpace(os.Getenv("GEOCODER_API_KEY")),
		City:              getenvDefault("CITY", "Beijing"),
		State:             getenvDefault("STATE", "Beijing"),
		Country:           getenvDefault("COUNTRY", "China"),
		DisplayTimezone:   getenvDefault("DISPLAY_TIMEZONE", "Asia/Shanghai"),
		HistoryChunkDays:  getenvInt("HISTORY_CHUNK_DAYS", 180),
		SessionMaxCount:   getenvInt("SESSION_MAX_COUNT", 32),
		EventsFile:        os.Getenv("EVENTS_FILE"),
		ResampleThreshold: getenvInt("RESAMPLE_THRESHOLD", 200000),
		SmoothingWindow:   getenvInt("SMOOTHING_WINDOW", 24),
		UploadMaxBytes:    getenvInt("UPLOAD_MAX_BYTES", 64<<20),
	}

	var err error
	latStr, lonStr := os.Getenv("LATITUDE"), os.Getenv("LONGITUDE")
	cfg.HasLocation = latStr != "" && lonStr != ""
	if cfg.Latitude, err = getenvFloat("LATITUDE", 39.9042); err != nil {
		return nil, err
	}
	if cfg.Longitude, err = getenvFloat("LONGITUDE", 116.4074); err != nil {
		return nil, err
	}
	if cfg.Latitude < -90 || cfg.Latitude > 90 || cfg.Longitude < -180 || cfg.Longitude > 180 {
		return nil, fmt.Errorf("coordinates out of range: %v,%v", cfg.Latitude, cfg.Longitude)
	}

	if cfg.StartDate, err = getenvDate("API_START_DATE", "2020-01-01"); err != nil {
		return nil, err
	}
	if cfg.EndDate, err = getenvDate("API_END_DATE", now().UTC().Format("2006-01-02")); err != nil {
		return nil, err
	}
	if cfg.EndDate.Before(cfg.StartDate) {
		return nil, fmt.Errorf("API_END_DATE %s is before API_START_DATE %s",
			cfg.EndDate.Format("2006-01-02"), cfg.StartDate.Format("2006-01-02"))
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"HISTORY_TIMEOUT", "60s", &cfg.HistoryTimeout},
		{"SNAPSHOT_TIMEOUT", "10s", &cfg.SnapshotTimeout},
		{"CACHE_TTL", "1h", &cfg.CacheTTL},
		{"SESSION_MAX_AGE", "2h", &cfg.SessionMaxAge},
		{"JANITOR_INTERVAL", "5m", &cfg.JanitorInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDate(key, def string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(getenvDefault(key, def)))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}

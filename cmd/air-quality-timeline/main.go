package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
	"github.com/i474232898/air-quality-timeline/internal/airquality/providers"
	httpapi "github.com/i474232898/air-quality-timeline/internal/api/http"
	"github.com/i474232898/air-quality-timeline/internal/cache"
	"github.com/i474232898/air-quality-timeline/internal/config"
	"github.com/i474232898/air-quality-timeline/internal/logging"
	"github.com/i474232898/air-quality-timeline/internal/scheduler"
	"github.com/i474232898/air-quality-timeline/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	place := providers.Place{City: cfg.City, State: cfg.State, Country: cfg.Country}
	lat, lon := cfg.Latitude, cfg.Longitude
	if !cfg.HasLocation && cfg.GeocoderAPIKey != "" {
		if glat, glon, err := providers.ResolveCoordinates(cfg.GeocoderAPIKey, place); err != nil {
			zlog.Warn("geocoding failed; using default coordinates", zap.Error(err))
		} else {
			lat, lon = glat, glon
			zlog.Info("resolved coordinates",
				zap.String("city", place.City),
				zap.Float64("lat", lat),
				zap.Float64("lon", lon))
		}
	}

	events := airquality.DefaultEvents()
	if cfg.EventsFile != "" {
		loaded, skipped, err := airquality.LoadEvents(cfg.EventsFile)
		if err != nil {
			zlog.Fatal("failed to load events file", zap.String("path", cfg.EventsFile), zap.Error(err))
		}
		if len(skipped) > 0 {
			zlog.Warn("skipped event entries with invalid dates", zap.Strings("keys", skipped))
		}
		events = loaded
	}

	// Shared HTTP client for outbound provider calls; timeouts are per request.
	httpClient := &http.Client{}

	fetchCache := cache.New[string, airquality.Batch](cfg.CacheTTL, 256, nil)
	sessions := store.NewMemoryStore(cfg.SessionMaxCount, cfg.SessionMaxAge, nil)

	service := airquality.NewService(fetchCache, zlog)

	janitor := scheduler.New(map[string]scheduler.Purger{
		"fetch-cache": fetchCache,
		"sessions":    sessions,
	}, cfg.JanitorInterval, zlog)
	if err := janitor.Start(); err != nil {
		zlog.Fatal("failed to start janitor", zap.Error(err))
	}
	defer janitor.Stop()

	api := httpapi.NewAPI(service, sessions, httpapi.Config{
		Defaults: httpapi.Defaults{
			Latitude:       lat,
			Longitude:      lon,
			Place:          place,
			Start:          cfg.StartDate,
			End:            cfg.EndDate,
			Timezone:       cfg.DisplayTimezone,
			OpenWeatherKey: cfg.OpenWeatherAPIKey,
			WAQIToken:      cfg.WAQIToken,
			AirVisualKey:   cfg.AirVisualAPIKey,
		},
		Client:            httpClient,
		HistoryTimeout:    cfg.HistoryTimeout,
		SnapshotTimeout:   cfg.SnapshotTimeout,
		HistoryChunkDays:  cfg.HistoryChunkDays,
		Events:            events,
		ResampleThreshold: cfg.ResampleThreshold,
		SmoothingWindow:   cfg.SmoothingWindow,
		UploadMaxBytes:    cfg.UploadMaxBytes,
	}, zlog)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "air-quality-timeline",
		DisableStartupMessage: true,
		BodyLimit:             cfg.UploadMaxBytes + 1<<20,
		ReadTimeout:           30 * time.Second,
		// Session creation may walk many history chunks.
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, api)

	go func() {
		zlog.Info("listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Warn("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
}

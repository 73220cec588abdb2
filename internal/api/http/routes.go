package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
	"github.com/i474232898/air-quality-timeline/internal/airquality/providers"
	"github.com/i474232898/air-quality-timeline/internal/store"
)

var validate = validator.New()

// Defaults fill in whatever a session request leaves empty.
type Defaults struct {
	Latitude       float64
	Longitude      float64
	Place          providers.Place
	Start          time.Time
	End            time.Time
	Timezone       string
	OpenWeatherKey string
	WAQIToken      string
	AirVisualKey   string
}

// Config wires the API to its collaborators.
type Config struct {
	Defaults Defaults

	Client           *http.Client
	HistoryTimeout   time.Duration
	SnapshotTimeout  time.Duration
	HistoryChunkDays int

	Events            []airquality.EventMarker
	ResampleThreshold int
	SmoothingWindow   int
	UploadMaxBytes    int
}

// API serves analysis sessions over HTTP.
type API struct {
	service  *airquality.Service
	sessions *store.MemoryStore
	cfg      Config
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *zap.Logger
}

func NewAPI(service *airquality.Service, sessions *store.MemoryStore, cfg Config, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.ResampleThreshold <= 0 {
		cfg.ResampleThreshold = airquality.DefaultResampleThreshold
	}
	if cfg.SmoothingWindow <= 0 {
		cfg.SmoothingWindow = airquality.DefaultSmoothingWindow
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = 64 << 20
	}

	// One breaker per provider kind, shared by every session.
	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, name := range []string{"openweather", "waqi", "airvisual"} {
		breakers[name] = providers.NewBreaker(name, logger)
	}

	return &API{
		service:  service,
		sessions: sessions,
		cfg:      cfg,
		breakers: breakers,
		logger:   logger,
	}
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, api *API) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "air-quality-timeline",
		})
	})

	v1 := app.Group("/api/v1")

	v1.Post("/sessions", api.createSession)

	sess := v1.Group("/sessions/:id")
	sess.Get("/records", api.records)
	sess.Get("/series", api.series)
	sess.Get("/groups", api.groups)
	sess.Get("/heatmap", api.heatmap)
	sess.Get("/stats", api.stats)
	sess.Get("/events", api.events)
	sess.Get("/export/records.csv", api.exportRecords)
	sess.Get("/export/stats.csv", api.exportStats)

	v1.Get("/aqi/:value", aqiCategory)
}

// ErrorHandler renders errors as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func (a *API) createSession(c *fiber.Ctx) error {
	var req sessionRequest
	if err := req.bind(c, a.cfg.Defaults); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var upload []byte
	var filename string
	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > int64(a.cfg.UploadMaxBytes) {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "uploaded file is too large")
		}
		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "could not read uploaded file")
		}
		upload, err = io.ReadAll(io.LimitReader(f, int64(a.cfg.UploadMaxBytes)+1))
		_ = f.Close()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "could not read uploaded file")
		}
		if len(upload) > a.cfg.UploadMaxBytes {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "uploaded file is too large")
		}
		filename = fh.Filename
	}

	result, err := a.service.Run(c.UserContext(), airquality.Request{
		Query: airquality.Query{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Start:     req.Start,
			End:       req.End,
		},
		Fetchers: a.fetchers(req, filename, upload),
		Timezone: req.Timezone,
	})
	if err != nil {
		if se, ok := airquality.AsSessionError(err); ok {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":   true,
				"kind":    se.Kind,
				"message": se.Message,
				"columns": se.Columns,
			})
		}
		a.logger.Error("session failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to build session")
	}

	session := a.sessions.Save(result)
	a.logger.Info("session created",
		zap.String("id", session.ID),
		zap.Int("records", result.Frame.Len()))

	resp := fiber.Map{
		"id":      session.ID,
		"report":  result.Report,
		"records": result.Frame.Len(),
		"zone":    result.Frame.Zone,
	}
	if cov, ok := result.Frame.Coverage(); ok {
		resp["coverage"] = cov
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// fetchers builds the sources of one session. Sources without a payload or
// credential report themselves as skipped.
func (a *API) fetchers(req sessionRequest, filename string, upload []byte) []airquality.Fetcher {
	var out []airquality.Fetcher
	if len(upload) > 0 {
		out = append(out, providers.NewUploadProvider(filename, upload))
	}

	out = append(out, providers.NewOpenWeatherProvider(a.cfg.Client, req.OpenWeatherKey, providers.Options{
		Timeout:   a.cfg.HistoryTimeout,
		ChunkDays: a.cfg.HistoryChunkDays,
		Breaker:   a.breakers["openweather"],
	}, a.logger))

	if req.IncludeSnapshots {
		out = append(out,
			providers.NewWAQIProvider(a.cfg.Client, req.WAQIToken, a.cfg.Defaults.Place.City, providers.Options{
				Timeout: a.cfg.SnapshotTimeout,
				Breaker: a.breakers["waqi"],
			}, a.logger),
			providers.NewAirVisualProvider(a.cfg.Client, req.AirVisualKey, a.cfg.Defaults.Place, providers.Options{
				Timeout: a.cfg.SnapshotTimeout,
				Breaker: a.breakers["airvisual"],
			}, a.logger),
		)
	}
	return out
}

func (a *API) session(c *fiber.Ctx) (store.Session, error) {
	sess, err := a.sessions.Get(c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Session{}, fiber.NewError(fiber.StatusNotFound, "unknown or expired session")
		}
		return store.Session{}, fiber.NewError(fiber.StatusInternalServerError, "failed to load session")
	}
	return sess, nil
}

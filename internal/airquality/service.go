package airquality

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/i474232898/air-quality-timeline/internal/cache"
)

// SourceState is the outcome of one fetcher within a session.
type SourceState string

const (
	StateOK      SourceState = "ok"
	StatePartial SourceState = "partial"
	StateNoData  SourceState = "no_data"
	StateFailed  SourceState = "failed"
	StateSkipped SourceState = "skipped"
)

// SourceStatus reports what one fetcher contributed.
type SourceStatus struct {
	Source   string      `json:"source"`
	State    SourceState `json:"state"`
	Records  int         `json:"records"`
	Strategy string      `json:"strategy,omitempty"`
	Missing  []Window    `json:"missing,omitempty"`
	Cached   bool        `json:"cached"`
	Message  string      `json:"message,omitempty"`
}

// Report describes how a canonical frame was produced.
type Report struct {
	Sources  []SourceStatus `json:"sources"`
	Merge    MergeStats     `json:"merge"`
	Timezone string         `json:"timezone"`
	Warnings []string       `json:"warnings,omitempty"`
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Request describes one analysis session.
type Request struct {
	Query    Query
	Fetchers []Fetcher
	Timezone string
}

// Result is the canonical frame plus its report.
type Result struct {
	Frame  Frame  `json:"-"`
	Report Report `json:"report"`
}

// Service runs the reconciliation pipeline.
type Service struct {
	cache  *cache.TTL[string, Batch]
	logger *zap.Logger
}

// NewService creates a Service. A nil cache disables memoization.
func NewService(c *cache.TTL[string, Batch], logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cache: c, logger: logger}
}

// Run fetches every source in priority order, one at a time, and reconciles
// them into a canonical frame. Source-level failures become report entries;
// session-level failures are returned as *SessionError.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	fetchers := append([]Fetcher(nil), req.Fetchers...)
	sort.SliceStable(fetchers, func(i, j int) bool {
		return fetchers[i].Priority() < fetchers[j].Priority()
	})

	report := Report{}
	var batches []Batch
	var columns []string

	for _, f := range fetchers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, cached, err := s.fetch(ctx, f, req.Query)
		status := SourceStatus{
			Source:   f.Name(),
			Records:  len(batch.Records),
			Strategy: batch.Strategy,
			Missing:  batch.Missing,
			Cached:   cached,
		}
		if batch.Source != "" {
			status.Source = batch.Source
		}

		switch {
		case err == nil && len(batch.Records) == 0:
			status.State = StateNoData
		case err == nil:
			status.State = StateOK
			if batch.Partial() {
				status.State = StatePartial
				report.warn("%s: %d window(s) could not be fetched; the timeline has gaps", status.Source, len(batch.Missing))
			}
		case errors.Is(err, ErrNotConfigured):
			status.State = StateSkipped
		case errors.Is(err, ErrNoData):
			status.State = StateNoData
			report.warn("%s returned no data; try a smaller date range or later", status.Source)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			status.State = StateFailed
			status.Message = err.Error()
		case errors.Is(err, ErrUnauthorized):
			status.State = StateFailed
			status.Message = "credential rejected; check the API key (new keys can take up to two hours to activate)"
			report.warn("%s: %s", status.Source, status.Message)
		default:
			status.State = StateFailed
			status.Message = err.Error()
			report.warn("%s: %v", status.Source, err)
		}

		if err != nil && status.State == StateFailed {
			s.logger.Warn("source fetch failed",
				zap.String("source", status.Source),
				zap.Error(err))
		}

		if len(batch.Records) > 0 {
			if !batch.Timeline {
				status.Message = "no datetime column found (expected datetime, date, timestamp or year/month/day[/hour])"
				report.warn("%s: %s", status.Source, status.Message)
			}
			batches = append(batches, batch)
			columns = append(columns, batch.Columns...)
		}
		report.Sources = append(report.Sources, status)
	}

	if len(batches) == 0 {
		return nil, &SessionError{
			Kind:    KindNoData,
			Message: "no data available: upload a CSV file or supply an API credential",
		}
	}

	frame, stats := MergeWithStats(batches...)
	report.Merge = stats

	if !frame.Timeline {
		return nil, &SessionError{
			Kind:    KindSchemaMissing,
			Message: "no valid datetime column found; provide datetime, date, timestamp or year/month/day/hour columns",
			Columns: uniqueColumns(columns),
		}
	}
	if frame.Empty() {
		return nil, &SessionError{
			Kind:    KindEmptyAfterParse,
			Message: fmt.Sprintf("all %d records had invalid datetime values; check the date/time format", stats.Unparsed),
		}
	}
	if len(frame.Available()) == 0 && !frame.HasAQI() {
		return nil, &SessionError{
			Kind:    KindSchemaMissing,
			Message: "no pollutant columns found; expected any of pm2.5, pm10, no2, so2, co, o3, aqi",
			Columns: uniqueColumns(columns),
		}
	}
	if stats.Unparsed > 0 {
		report.warn("dropped %d record(s) with unparseable timestamps", stats.Unparsed)
	}

	report.Timezone = "UTC"
	if req.Timezone != "" {
		converted, err := ConvertTimezone(frame, req.Timezone)
		if err != nil {
			report.warn("could not convert timezone: %v; using UTC", err)
			s.logger.Warn("timezone conversion failed", zap.String("timezone", req.Timezone), zap.Error(err))
		} else {
			frame = converted
			report.Timezone = converted.Zone
		}
	}

	s.logger.Info("session frame ready",
		zap.Int("records", frame.Len()),
		zap.Int("sources", len(batches)),
		zap.Int("duplicates", stats.Duplicates),
		zap.String("timezone", report.Timezone))

	return &Result{Frame: frame, Report: report}, nil
}

// fetch runs f through the cache when f supports it. Only complete,
// non-empty batches are memoized so gaps are retried on the next session.
func (s *Service) fetch(ctx context.Context, f Fetcher, q Query) (Batch, bool, error) {
	keyer, ok := f.(CacheKeyer)
	if !ok || s.cache == nil {
		b, err := f.Fetch(ctx, q)
		return b, false, err
	}

	key := f.Name() + "|" + keyer.CacheKey(q)
	if b, hit := s.cache.Get(key); hit {
		s.logger.Debug("fetch cache hit", zap.String("source", f.Name()))
		return b, true, nil
	}

	b, err := f.Fetch(ctx, q)
	if err == nil && len(b.Records) > 0 && !b.Partial() {
		s.cache.Set(key, b)
	}
	return b, false, err
}

func uniqueColumns(cols []string) []string {
	seen := make(map[string]struct{}, len(cols))
	var out []string
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if _, ok := seen[c]; ok || c == "" {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

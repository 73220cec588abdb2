package airquality

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Query holds the parameters shared by every fetcher of a session.
type Query struct {
	Latitude  float64
	Longitude float64
	// Start and End are calendar dates; End is inclusive.
	Start time.Time
	End   time.Time
}

// Key returns a canonical string for cache keys. Coordinates keep their
// full precision so distinct points never share an entry.
func (q Query) Key() string {
	return fmt.Sprintf("%s,%s:%s:%s",
		strconv.FormatFloat(q.Latitude, 'g', -1, 64),
		strconv.FormatFloat(q.Longitude, 'g', -1, 64),
		q.Start.Format("2006-01-02"), q.End.Format("2006-01-02"))
}

// Fetcher abstracts one data source (uploaded file, history API, snapshot API).
// Fetch returns ErrNotConfigured when the source is not configured and
// ErrNoData when it completed without records.
type Fetcher interface {
	Name() string
	Priority() Priority
	Fetch(ctx context.Context, q Query) (Batch, error)
}

// CacheKeyer is implemented by fetchers whose results may be memoized.
// The key must cover the credential and every request parameter.
type CacheKeyer interface {
	CacheKey(q Query) string
}

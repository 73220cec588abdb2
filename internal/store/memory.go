package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
)

var (
	// ErrNotFound is returned when no session exists for an id.
	ErrNotFound = errors.New("session not found")
)

// Session is one analysis session: a canonical frame and how it was built.
// Sessions are read-only once saved.
type Session struct {
	ID        string
	CreatedAt time.Time
	Result    *airquality.Result
}

// MemoryStore is a concurrency-safe in-memory session store.
type MemoryStore struct {
	mu sync.RWMutex

	data map[string]Session

	// retention configuration
	maxCount int           // max number of sessions; oldest evicted first
	maxAge   time.Duration // optional max age for sessions

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxCount or maxAge is <= 0, it is treated as unlimited.
func NewMemoryStore(maxCount int, maxAge time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		data:     make(map[string]Session),
		maxCount: maxCount,
		maxAge:   maxAge,
		now:      now,
	}
}

// Save stores result under a new id and enforces retention.
func (s *MemoryStore) Save(result *airquality.Result) Session {
	sess := Session{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
		Result:    result,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[sess.ID] = sess
	s.purgeLocked(sess.CreatedAt)

	// Enforce retention by count.
	if s.maxCount > 0 && len(s.data) > s.maxCount {
		ordered := s.orderedLocked()
		for _, old := range ordered[:len(ordered)-s.maxCount] {
			delete(s.data, old.ID)
		}
	}
	return sess
}

// Get returns the session with id, unless it is unknown or expired.
func (s *MemoryStore) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.data[id]
	if !ok || s.expired(sess, s.now()) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Purge drops expired sessions and returns how many were removed.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(s.now())
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) expired(sess Session, now time.Time) bool {
	return s.maxAge > 0 && now.Sub(sess.CreatedAt) > s.maxAge
}

func (s *MemoryStore) purgeLocked(now time.Time) int {
	removed := 0
	for id, sess := range s.data {
		if s.expired(sess, now) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) orderedLocked() []Session {
	out := make([]Session, 0, len(s.data))
	for _, sess := range s.data {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

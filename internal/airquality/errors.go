package airquality

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoData is returned by a fetcher that completed without producing records.
	ErrNoData = errors.New("no data")
	// ErrUnauthorized is returned when a provider rejects the credential.
	ErrUnauthorized = errors.New("credential rejected by provider")
	// ErrChunkExhausted is returned when a request used up its retry budget.
	ErrChunkExhausted = errors.New("retry budget exhausted")
	// ErrNotConfigured marks a source without credential or payload.
	ErrNotConfigured = errors.New("source not configured for this session")
)

// StatusError reports a non-2xx response that is neither auth nor rate limiting.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
}

// SessionErrorKind classifies conditions that stop a session.
type SessionErrorKind string

const (
	KindNoData          SessionErrorKind = "no_data"
	KindEmptyAfterParse SessionErrorKind = "empty_after_parse"
	KindSchemaMissing   SessionErrorKind = "schema_missing"
)

// SessionError is a session-level fatal condition with an actionable message.
type SessionError struct {
	Kind    SessionErrorKind `json:"kind"`
	Message string           `json:"message"`
	Columns []string         `json:"columns,omitempty"`
}

func (e *SessionError) Error() string {
	if len(e.Columns) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (available columns: %s)", e.Message, strings.Join(e.Columns, ", "))
}

// AsSessionError unwraps err into a *SessionError.
func AsSessionError(err error) (*SessionError, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

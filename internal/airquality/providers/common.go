package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/air-quality-timeline/internal/airquality"
)

// RetryPolicy controls fixed-delay retries of a single request.
type RetryPolicy struct {
	Attempts         int
	Backoff          time.Duration // after timeouts and I/O errors
	RateLimitBackoff time.Duration // after a 429
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Timeout time.Duration // per attempt
	Retry   RetryPolicy
	Sleep   func(ctx context.Context, d time.Duration) error
}

// Options tunes a provider. Zero values fall back to provider defaults.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Retry   RetryPolicy
	// ChunkDays is the history window size.
	ChunkDays int
	Sleep     func(ctx context.Context, d time.Duration) error
	Now       func() time.Time
	// Breaker is shared across provider instances of one kind so repeated
	// sessions see the same failure history. Nil creates a private one.
	Breaker *gobreaker.CircuitBreaker
}

var (
	errRateLimited  = errors.New("rate limited")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// NewBreaker returns the circuit breaker used around provider requests.
func NewBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// getJSON performs a GET with a per-attempt timeout and decodes the body
// into out. Timeouts, transport errors, unreadable bodies and an open
// breaker each use up one attempt and are retried with a fixed delay, 429
// with a longer one, all within Retry.Attempts.
// 401 returns airquality.ErrUnauthorized at once; any other non-2xx status
// returns *airquality.StatusError at once. An exhausted budget wraps
// airquality.ErrChunkExhausted.
func getJSON(
	ctx context.Context,
	provider string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
	out any,
) error {
	if cfg.Client == nil {
		return errNoHTTPClient
	}
	attempts := cfg.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attemptJSON(ctx, provider, cfg, cb, buildRequest, out)
		if err == nil {
			return nil
		}

		var statusErr *airquality.StatusError
		var perm permanentError
		switch {
		case errors.As(err, &perm):
			return perm.err
		case errors.Is(err, airquality.ErrUnauthorized), errors.As(err, &statusErr):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}

		lastErr = err
		if attempt == attempts {
			break
		}
		delay := cfg.Retry.Backoff
		if errors.Is(err, errRateLimited) {
			delay = cfg.Retry.RateLimitBackoff
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempt(s): %v", airquality.ErrChunkExhausted, attempts, lastErr)
}

func attemptJSON(
	ctx context.Context,
	provider string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
	out any,
) error {
	attemptCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req, err := buildRequest(attemptCtx)
	if err != nil {
		return permanentError{err}
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		if resp.StatusCode >= 500 {
			drain(resp)
			return nil, &airquality.StatusError{Provider: provider, StatusCode: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return fmt.Errorf("unexpected result type from circuit breaker")
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", provider, airquality.ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", provider, errRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &airquality.StatusError{Provider: provider, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// fingerprint identifies a credential in cache keys without storing it.
func fingerprint(credential string) string {
	return strconv.FormatUint(xxhash.Sum64String(credential), 16)
}

func withDefaults(opts Options, baseURL string, timeout time.Duration, retry RetryPolicy) Options {
	if opts.BaseURL == "" {
		opts.BaseURL = baseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = timeout
	}
	if opts.Retry.Attempts <= 0 {
		opts.Retry = retry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

func breakerFor(opts Options, name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if opts.Breaker != nil {
		return opts.Breaker
	}
	return NewBreaker(name, logger)
}

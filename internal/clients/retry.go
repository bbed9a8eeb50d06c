package clients

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"slices"
	"strconv"
	"time"
)

// RetryConfig controls how catalog calls are retried
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        float64 // fraction of the delay, 0-1
	RetryStatuses []int
	// OnRetry is called before each wait
	OnRetry func(operation string, attempt int, wait time.Duration, err error)
}

// DefaultRetryConfig returns the settings used for Shopify calls
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
		RetryStatuses: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// RetryPolicy controls which failures are retried for an operation
type RetryPolicy int

const (
	// RetryIdempotent retries transport errors, retryable statuses and throttling
	RetryIdempotent RetryPolicy = iota
	// RetryThrottledOnly retries only failures where the API guarantees the
	// request was not applied (HTTP 429 or a THROTTLED GraphQL error)
	RetryThrottledOnly
)

// Retrier repeats catalog calls with exponential backoff
type Retrier struct {
	cfg RetryConfig
}

// NewRetrier creates a retrier. A nil config uses DefaultRetryConfig.
func NewRetrier(cfg *RetryConfig) *Retrier {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &Retrier{cfg: *cfg}
}

// Retryable reports whether err may be retried under policy
func (r *Retrier) Retryable(policy RetryPolicy, err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var (
		gqlErr  *GraphQLErrors
		apiErr  *APIError
		userErr *UserErrorsError
	)
	switch {
	case errors.As(err, &gqlErr):
		return gqlErr.Throttled()
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return policy == RetryIdempotent && slices.Contains(r.cfg.RetryStatuses, apiErr.StatusCode)
	case errors.As(err, &userErr):
		return false
	}
	// transport failure, the request may or may not have reached the API
	return policy == RetryIdempotent
}

// Backoff returns the wait before retry number attempt (0-based). A
// positive hint from Retry-After wins.
func (r *Retrier) Backoff(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	wait := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.Multiplier, float64(attempt))
	if r.cfg.Jitter > 0 {
		wait += wait * r.cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Min(wait, float64(r.cfg.MaxDelay)))
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date
func RetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		return time.Until(at)
	}
	return 0
}

// Do runs fn until it succeeds, fails permanently or the retries run out.
// It returns the number of attempts made.
func (r *Retrier) Do(ctx context.Context, operation string, policy RetryPolicy, fn func(ctx context.Context) error) (int, error) {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !r.Retryable(policy, err) {
			return attempt + 1, err
		}
		if attempt >= r.cfg.MaxRetries {
			return attempt + 1, fmt.Errorf("max retries exceeded for %s: %w", operation, err)
		}

		var hint time.Duration
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			hint = apiErr.RetryAfter
		}
		wait := r.Backoff(attempt, hint)
		if r.cfg.OnRetry != nil {
			r.cfg.OnRetry(operation, attempt+1, wait, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt + 1, ctx.Err()
		case <-timer.C:
		}
	}
}

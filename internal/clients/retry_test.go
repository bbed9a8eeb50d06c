package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier() *Retrier {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 2
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return NewRetrier(cfg)
}

func TestRetryable(t *testing.T) {
	r := fastRetrier()
	throttled := &GraphQLErrors{Errors: []GraphQLError{{Message: "Throttled", Extensions: map[string]interface{}{"code": "THROTTLED"}}}}
	invalid := &GraphQLErrors{Errors: []GraphQLError{{Message: "Field 'x' doesn't exist"}}}
	network := errors.New("connection reset by peer")

	tests := []struct {
		name   string
		policy RetryPolicy
		err    error
		want   bool
	}{
		{"nil error", RetryIdempotent, nil, false},
		{"429 idempotent", RetryIdempotent, &APIError{StatusCode: 429}, true},
		{"429 throttled only", RetryThrottledOnly, &APIError{StatusCode: 429}, true},
		{"503 idempotent", RetryIdempotent, &APIError{StatusCode: 503}, true},
		{"503 throttled only", RetryThrottledOnly, &APIError{StatusCode: 503}, false},
		{"400", RetryIdempotent, &APIError{StatusCode: 400}, false},
		{"throttled graphql", RetryThrottledOnly, throttled, true},
		{"invalid graphql", RetryIdempotent, invalid, false},
		{"wrapped throttled", RetryThrottledOnly, fmt.Errorf("call: %w", throttled), true},
		{"network idempotent", RetryIdempotent, network, true},
		{"network throttled only", RetryThrottledOnly, network, false},
		{"user errors", RetryIdempotent, &UserErrorsError{Operation: "x"}, false},
		{"canceled", RetryIdempotent, context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Retryable(tt.policy, tt.err))
		})
	}
}

func TestRetrierDo(t *testing.T) {
	r := fastRetrier()

	t.Run("succeeds after transient failure", func(t *testing.T) {
		calls := 0
		attempts, err := r.Do(context.Background(), "op", RetryIdempotent, func(ctx context.Context) error {
			calls++
			if calls == 1 {
				return &APIError{StatusCode: http.StatusServiceUnavailable}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		_, err := r.Do(context.Background(), "op", RetryIdempotent, func(ctx context.Context) error {
			calls++
			return &APIError{StatusCode: http.StatusTooManyRequests}
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded for op")
		assert.Equal(t, 3, calls)

		var apiErr *APIError
		assert.True(t, errors.As(err, &apiErr))
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		calls := 0
		_, err := r.Do(context.Background(), "op", RetryThrottledOnly, func(ctx context.Context) error {
			calls++
			return &APIError{StatusCode: http.StatusBadGateway}
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("reports each retry", func(t *testing.T) {
		var waits []int
		cfg := DefaultRetryConfig()
		cfg.MaxRetries = 2
		cfg.BaseDelay = time.Millisecond
		cfg.MaxDelay = time.Millisecond
		cfg.OnRetry = func(_ string, attempt int, _ time.Duration, _ error) { waits = append(waits, attempt) }

		_, err := NewRetrier(cfg).Do(context.Background(), "op", RetryIdempotent, func(ctx context.Context) error {
			return errors.New("network down")
		})
		assert.Error(t, err)
		assert.Equal(t, []int{1, 2}, waits)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := NewRetrier(&RetryConfig{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1})
		attempts, err := slow.Do(ctx, "op", RetryIdempotent, func(ctx context.Context) error {
			return errors.New("network down")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}

func TestBackoff(t *testing.T) {
	r := NewRetrier(&RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2})

	assert.Equal(t, time.Second, r.Backoff(0, 0))
	assert.Equal(t, 4*time.Second, r.Backoff(2, 0))
	assert.Equal(t, 5*time.Second, r.Backoff(10, 0))
	assert.Equal(t, 3*time.Second, r.Backoff(0, 3*time.Second))
}

func TestRetryAfter(t *testing.T) {
	header := http.Header{}
	assert.Zero(t, RetryAfter(header))

	header.Set("Retry-After", "2.0")
	assert.Equal(t, 2*time.Second, RetryAfter(header))
}

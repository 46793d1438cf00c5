package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

func TestShouldRetryClassification(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxRetries: 2})
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", fmt.Errorf("dial: %w", crawler.ErrNetwork), true},
		{"timeout", fmt.Errorf("read: %w", crawler.ErrTimeout), true},
		{"server error", &crawler.StatusError{Code: http.StatusBadGateway}, true},
		{"rate limited", &crawler.StatusError{Code: http.StatusTooManyRequests}, true},
		{"not found", &crawler.StatusError{Code: http.StatusNotFound}, false},
		{"canceled", fmt.Errorf("%w: %w", crawler.ErrNetwork, context.Canceled), false},
		{"unclassified", errors.New("boom"), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, p.ShouldRetry(tc.err, 1))
		})
	}
}

func TestShouldRetryHonorsBound(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxRetries: 2})
	err := crawler.ErrNetwork
	require.True(t, p.ShouldRetry(err, 1))
	require.True(t, p.ShouldRetry(err, 2))
	require.False(t, p.ShouldRetry(err, 3))

	none := NewExponentialPolicy(Config{MaxRetries: 0})
	require.False(t, none.ShouldRetry(err, 1))
}

func TestBackoffWithinBounds(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond})
	for attempt := 1; attempt <= 6; attempt++ {
		ceiling := 100 * time.Millisecond << (attempt - 1)
		if ceiling > 400*time.Millisecond {
			ceiling = 400 * time.Millisecond
		}
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, ceiling/2)
		require.LessOrEqual(t, d, ceiling)
	}
}

func TestStoreRetryable(t *testing.T) {
	t.Parallel()

	require.True(t, StoreRetryable(fmt.Errorf("ping: %w", crawler.ErrStoreUnavailable)))
	require.False(t, StoreRetryable(crawler.ErrNetwork))

	p := NewExponentialPolicy(Config{MaxRetries: 1, Retryable: StoreRetryable})
	require.True(t, p.ShouldRetry(crawler.ErrStoreUnavailable, 1))
	require.False(t, p.ShouldRetry(crawler.ErrNetwork, 1))
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	calls := 0
	var retried []int
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return crawler.ErrTimeout
		}
		return nil
	}, func(attempt int, _ error) { retried = append(retried, attempt) })
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, retried)
}

func TestDoGivesUpAfterBound(t *testing.T) {
	t.Parallel()

	p := NewExponentialPolicy(Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return crawler.ErrNetwork
	}, nil)
	require.ErrorIs(t, err, crawler.ErrNetwork)
	require.Equal(t, 3, calls)
}

func TestSleepCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, Sleep(context.Background(), 0))
}

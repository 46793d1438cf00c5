// Package retry implements jittered exponential backoff for fetch and store calls.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

// Config tunes an ExponentialPolicy.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Retryable classifies errors. Nil means FetchRetryable.
	Retryable func(error) bool
}

// ExponentialPolicy implements crawler.RetryPolicy with jittered backoff.
type ExponentialPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	retryable  func(error) bool
}

// NewExponentialPolicy builds a policy, filling unset values with defaults.
func NewExponentialPolicy(cfg Config) *ExponentialPolicy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Retryable == nil {
		cfg.Retryable = FetchRetryable
	}
	return &ExponentialPolicy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		retryable:  cfg.Retryable,
	}
}

// ShouldRetry decides whether the error is retryable. attempt is the number of
// attempts already made.
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt > p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return p.retryable(err)
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// FetchRetryable reports whether a fetch error is transient.
func FetchRetryable(err error) bool {
	var statusErr *crawler.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return errors.Is(err, crawler.ErrNetwork) || errors.Is(err, crawler.ErrTimeout)
}

// StoreRetryable reports whether a store error is worth another attempt.
func StoreRetryable(err error) bool {
	return errors.Is(err, crawler.ErrStoreUnavailable)
}

// Do runs op until it succeeds, the policy gives up, or ctx ends. onRetry, when
// set, is called before each backoff sleep.
func Do(ctx context.Context, policy crawler.RetryPolicy, op func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !policy.ShouldRetry(err, attempt) {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if err := Sleep(ctx, policy.Backoff(attempt)); err != nil {
			return err
		}
	}
}

// Sleep waits for delay or until ctx ends.
func Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

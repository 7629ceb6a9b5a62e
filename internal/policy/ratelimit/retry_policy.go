package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// retryPolicy retries retryable fetch errors with jittered backoff.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newRetryPolicy(maxRetries int, baseDelay time.Duration) *retryPolicy {
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &retryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   5 * time.Second,
	}
}

// ShouldRetry decides whether the error is retryable; attempt counts prior retries.
func (p *retryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, crawler.ErrRetryableFetch)
}

// Backoff returns the wait duration before the next attempt.
func (p *retryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

// Package ratelimit implements the per-host Rate/Backoff Controller: a token bucket
// that spaces requests with jitter, and a failure-streak tracker that trips a host
// after too many consecutive failures.
package ratelimit

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/remote-lead-crawler/internal/metrics"
)

const (
	defaultMinInterval      = 1500 * time.Millisecond
	defaultFailureThreshold = 20
)

// Config holds controller configuration.
type Config struct {
	// MinInterval is the minimum spacing between requests to one host.
	MinInterval time.Duration
	// Jitter is the upper bound of the random delay added after each acquisition.
	Jitter time.Duration
	// FailureThreshold is the consecutive-failure count that trips a host.
	FailureThreshold int
}

// Controller manages per-host rate limits and failure streaks.
type Controller struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval rate.Limit
	jitter   time.Duration
	streaks  *failureStreaks
	pauser   pauseController
	jitterFn func(limit time.Duration) time.Duration
}

// New creates a new Controller.
func New(cfg Config) *Controller {
	interval := cfg.MinInterval
	if interval < 0 {
		interval = defaultMinInterval
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	jitter := cfg.Jitter
	if jitter < 0 {
		jitter = 0
	}
	return &Controller{
		limiters: make(map[string]*rate.Limiter),
		interval: limit,
		jitter:   jitter,
		streaks:  newFailureStreaks(cfg.FailureThreshold),
		pauser:   &timerPauseController{},
		jitterFn: randomJitter,
	}
}

// Throttle blocks until the host's minimum interval has elapsed, then sleeps a random
// jitter so concurrent callers do not fall into lockstep.
func (c *Controller) Throttle(ctx context.Context, host string) error {
	host = hostKey(host)
	limiter := c.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	c.pauser.Pause(ctx, c.jitterFn(c.jitter))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveThrottleDelay(host, waited)
	}
	return nil
}

// RecordFailure extends the host's failure streak and reports whether it is now tripped.
func (c *Controller) RecordFailure(host string) bool {
	return c.streaks.Fail(hostKey(host))
}

// RecordSuccess clears the host's failure streak.
func (c *Controller) RecordSuccess(host string) {
	c.streaks.Succeed(hostKey(host))
}

// Tripped reports whether the host reached the failure threshold.
func (c *Controller) Tripped(host string) bool {
	return c.streaks.Tripped(hostKey(host))
}

// Reset clears the streak and trip state for host.
func (c *Controller) Reset(host string) {
	c.streaks.Reset(hostKey(host))
}

func (c *Controller) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(c.interval, 1)
		c.limiters[host] = limiter
	}
	return limiter
}

func hostKey(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return "unknown"
	}
	return host
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

package ratelimit

import (
	"context"
	"fmt"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/metrics"
)

// Fetcher routes every request through a Controller: it throttles per host, records
// the outcome in the host's failure streak, and retries a retryable failure once.
// Streaks are kept per host and per crawler.ScopeFrom(ctx), so a host tripped while
// draining one (source, term) pair is still tried by the next pair.
type Fetcher struct {
	next  crawler.Fetcher
	ctrl  *Controller
	retry *retryPolicy
}

// NewFetcher wraps next with ctrl.
func NewFetcher(next crawler.Fetcher, ctrl *Controller) *Fetcher {
	return &Fetcher{
		next:  next,
		ctrl:  ctrl,
		retry: newRetryPolicy(1, 0),
	}
}

// Fetch implements crawler.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	host := crawler.HostOf(request.URL)
	streak := streakKey(ctx, host)
	for attempt := 0; ; attempt++ {
		if f.ctrl.Tripped(streak) {
			return crawler.FetchResponse{}, fmt.Errorf("%s: %w", host, crawler.ErrBackoffTripped)
		}
		if err := f.ctrl.Throttle(ctx, host); err != nil {
			return crawler.FetchResponse{}, err
		}
		resp, err := f.next.Fetch(ctx, request)
		if err == nil {
			f.ctrl.RecordSuccess(streak)
			metrics.ObserveFetch(host, "ok")
			return resp, nil
		}
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
		metrics.ObserveFetch(host, "error")
		if f.ctrl.RecordFailure(streak) {
			return crawler.FetchResponse{}, fmt.Errorf("%w (%s: %w)", err, host, crawler.ErrBackoffTripped)
		}
		if !f.retry.ShouldRetry(err, attempt) {
			return crawler.FetchResponse{}, err
		}
		f.ctrl.pauser.Pause(ctx, f.retry.Backoff(attempt))
	}
}

func streakKey(ctx context.Context, host string) string {
	if scope := crawler.ScopeFrom(ctx); scope != "" {
		return host + "#" + scope
	}
	return host
}

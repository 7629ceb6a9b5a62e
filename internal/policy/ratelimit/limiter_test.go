package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

func TestController_ThrottleSpacesRequests(t *testing.T) {
	t.Parallel()

	c := New(Config{MinInterval: 100 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, c.Throttle(ctx, "test.com"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "first acquisition is immediate")

	start = time.Now()
	require.NoError(t, c.Throttle(ctx, "test.com"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestController_DifferentHosts(t *testing.T) {
	t.Parallel()

	c := New(Config{MinInterval: time.Second})
	ctx := context.Background()

	require.NoError(t, c.Throttle(ctx, "a.com"))
	start := time.Now()
	require.NoError(t, c.Throttle(ctx, "b.com"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "host b must not wait on host a")
}

func TestController_ThrottleAddsJitter(t *testing.T) {
	t.Parallel()

	c := New(Config{MinInterval: 0, Jitter: time.Second})
	var got []time.Duration
	c.jitterFn = func(limit time.Duration) time.Duration {
		got = append(got, limit)
		return time.Millisecond
	}
	require.NoError(t, c.Throttle(context.Background(), "a.com"))
	require.Equal(t, []time.Duration{time.Second}, got)
}

func TestController_ThrottleHonorsContext(t *testing.T) {
	t.Parallel()

	c := New(Config{MinInterval: time.Hour})
	require.NoError(t, c.Throttle(context.Background(), "slow.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, c.Throttle(ctx, "slow.com"))
}

func TestController_FailureStreak(t *testing.T) {
	t.Parallel()

	c := New(Config{FailureThreshold: 3})
	require.False(t, c.RecordFailure("Example.org"))
	require.False(t, c.RecordFailure("example.org"))
	c.RecordSuccess("example.org")

	require.False(t, c.RecordFailure("example.org"), "success resets the streak")
	require.False(t, c.RecordFailure("example.org"))
	require.True(t, c.RecordFailure("example.org"))
	require.True(t, c.Tripped("EXAMPLE.ORG"), "host comparison should be case-insensitive")

	c.RecordSuccess("example.org")
	require.True(t, c.Tripped("example.org"), "a tripped host stays tripped until reset")

	c.Reset("example.org")
	require.False(t, c.Tripped("example.org"))
}

func TestController_DefaultThreshold(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	for i := 0; i < defaultFailureThreshold-1; i++ {
		require.False(t, c.RecordFailure("h"))
	}
	require.True(t, c.RecordFailure("h"))
}

func TestTimerPauseControllerHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pauser := &timerPauseController{}
	start := time.Now()
	pauser.Pause(ctx, 5*time.Second)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

type scriptedFetcher struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *scriptedFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return crawler.FetchResponse{}, err
		}
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte("ok")}, nil
}

func retryable() error {
	return &crawler.FetchError{URL: "https://a.com", Retryable: true, Err: errors.New("timeout")}
}

func TestFetcher_RetriesRetryableOnce(t *testing.T) {
	t.Parallel()

	next := &scriptedFetcher{errs: []error{retryable(), nil}}
	f := NewFetcher(next, New(Config{MinInterval: 0}))
	f.retry = newRetryPolicy(1, time.Millisecond)

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://a.com/x"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 2, next.calls)
}

func TestFetcher_GivesUpAfterOneRetry(t *testing.T) {
	t.Parallel()

	next := &scriptedFetcher{errs: []error{retryable(), retryable(), nil}}
	f := NewFetcher(next, New(Config{MinInterval: 0}))
	f.retry = newRetryPolicy(1, time.Millisecond)

	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://a.com/x"})
	require.ErrorIs(t, err, crawler.ErrRetryableFetch)
	require.Equal(t, 2, next.calls)
}

func TestFetcher_DoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	permanent := &crawler.FetchError{URL: "https://a.com", StatusCode: 404, Err: errors.New("Not Found")}
	next := &scriptedFetcher{errs: []error{permanent}}
	f := NewFetcher(next, New(Config{MinInterval: 0}))

	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://a.com/x"})
	require.Error(t, err)
	require.Equal(t, 1, next.calls)
}

func TestFetcher_TripsHostAfterThreshold(t *testing.T) {
	t.Parallel()

	permanent := &crawler.FetchError{URL: "https://a.com", StatusCode: 500, Err: errors.New("boom")}
	next := &scriptedFetcher{errs: []error{permanent, permanent}}
	ctrl := New(Config{MinInterval: 0, FailureThreshold: 2})
	f := NewFetcher(next, ctrl)

	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://a.com/1"})
	require.NotErrorIs(t, err, crawler.ErrBackoffTripped)
	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://a.com/2"})
	require.ErrorIs(t, err, crawler.ErrBackoffTripped)

	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://a.com/3"})
	require.ErrorIs(t, err, crawler.ErrBackoffTripped)
	require.Equal(t, 2, next.calls, "a tripped host is not contacted again")

	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://b.com/1"})
	require.NoError(t, err)
}

func TestFetcher_TripIsScopedToPair(t *testing.T) {
	t.Parallel()

	permanent := &crawler.FetchError{URL: "https://a.com", StatusCode: 500, Err: errors.New("boom")}
	next := &scriptedFetcher{errs: []error{permanent, permanent}}
	f := NewFetcher(next, New(Config{MinInterval: 0, FailureThreshold: 2}))

	first := crawler.WithScope(context.Background(), crawler.Pair{Source: 0, Term: 0}.Scope())
	second := crawler.WithScope(context.Background(), crawler.Pair{Source: 0, Term: 1}.Scope())

	_, err := f.Fetch(first, crawler.FetchRequest{URL: "https://a.com/1"})
	require.Error(t, err)
	_, err = f.Fetch(first, crawler.FetchRequest{URL: "https://a.com/2"})
	require.ErrorIs(t, err, crawler.ErrBackoffTripped)
	_, err = f.Fetch(first, crawler.FetchRequest{URL: "https://a.com/3"})
	require.ErrorIs(t, err, crawler.ErrBackoffTripped)

	resp, err := f.Fetch(second, crawler.FetchRequest{URL: "https://a.com/4"})
	require.NoError(t, err, "the next pair starts with a clean streak")
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 3, next.calls)
}

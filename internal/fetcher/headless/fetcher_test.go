package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

func TestNewChromedpValidatesParallel(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)
}

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{})
	require.NoError(t, err)
	t.Cleanup(f.Close)

	assert.Equal(t, defaultNavTimeout, f.cfg.NavigationTimeout)
	assert.Equal(t, 1, cap(f.limiter))
}

func TestAcquireHonorsCancellation(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	t.Cleanup(f.Close)

	require.NoError(t, f.acquire(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = f.acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f.release()
	require.NoError(t, f.acquire(context.Background()))
	f.release()
	f.release()
}

func TestFetchAfterCloseReportsCapabilityLost(t *testing.T) {
	t.Parallel()

	f, err := NewChromedp(Config{})
	require.NoError(t, err)
	f.Close()

	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: "https://example.com/in/someone"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrCapabilityLost))
	assert.True(t, crawler.Fatal(err))
}

func TestResponseMetaKeepsLastDocumentResponse(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{URL: "https://example.com/redirect", Status: 301},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{URL: "https://example.com/logo.png", Status: 404},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			URL:     "https://example.com/in/someone",
			Status:  200,
			Headers: network.Headers{"Content-Type": "text/html", "Set-Cookie": []any{"a=1", "b=2"}},
		},
	})

	status, headers, url := meta.snapshotWithFallbacks("https://example.com/start", "https://example.com/final")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "https://example.com/in/someone", url)
	assert.Equal(t, "text/html", headers.Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, headers.Values("Set-Cookie"))
}

func TestResponseMetaFallbacks(t *testing.T) {
	t.Parallel()

	status, headers, url := newResponseMeta().snapshotWithFallbacks("https://example.com/start", "https://example.com/final")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, headers)
	assert.Equal(t, "https://example.com/final", url)

	_, _, url = newResponseMeta().snapshotWithFallbacks("https://example.com/start", "")
	assert.Equal(t, "https://example.com/start", url)
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Accept-Language", "en")
	h.Add("X-Multi", "1")
	h.Add("X-Multi", "2")
	h["X-Empty"] = nil

	out := toNetworkHeaders(h)
	assert.Equal(t, "en", out["Accept-Language"])
	assert.Equal(t, []string{"1", "2"}, out["X-Multi"])
	_, ok := out["X-Empty"]
	assert.False(t, ok)
}

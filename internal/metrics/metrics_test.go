package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	t.Parallel()

	Init()
	Init()

	require.NotNil(t, postingsTotal)
	require.NotNil(t, leadsTotal)
	require.NotNil(t, fetchTotal)
	require.NotNil(t, throttleDelaySeconds)
	require.NotNil(t, resolverStageTotal)
	require.NotNil(t, checkpointSavesTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveHelpers(t *testing.T) {
	t.Parallel()

	ObservePosting("metrics-test-source", "accepted")
	ObservePosting("metrics-test-source", "accepted")
	ObserveLead("metrics-test-source")
	ObserveFetch("https://Metrics-Test.example/jobs", "ok")
	ObserveResolverStage("metrics-test-stage", true)
	ObserveResolverStage("metrics-test-stage", false)
	ObserveCheckpointSave("metrics-test-kind", nil)
	ObserveCheckpointSave("metrics-test-kind", errors.New("disk full"))
	ObserveThrottleDelay("metrics-test.example", 250*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(postingsTotal.WithLabelValues("metrics-test-source", "accepted")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(leadsTotal.WithLabelValues("metrics-test-source")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(fetchTotal.WithLabelValues("metrics-test.example", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(resolverStageTotal.WithLabelValues("metrics-test-stage", "found")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(resolverStageTotal.WithLabelValues("metrics-test-stage", "empty")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(checkpointSavesTotal.WithLabelValues("metrics-test-kind", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(checkpointSavesTotal.WithLabelValues("metrics-test-kind", "error")), 0)
	assert.Positive(t, testutil.CollectAndCount(throttleDelaySeconds))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

// Package metrics exposes Prometheus collectors for the lead crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	postingsTotal              *prometheus.CounterVec
	leadsTotal                 *prometheus.CounterVec
	fetchTotal                 *prometheus.CounterVec
	throttleDelaySeconds       *prometheus.HistogramVec
	resolverStageTotal         *prometheus.CounterVec
	checkpointSavesTotal       *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every Observe helper calls it.
func Init() {
	once.Do(func() {
		postingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcrawler_postings_total",
				Help: "Postings processed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		leadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcrawler_leads_total",
				Help: "Leads accepted into the dedup store, labeled by source.",
			},
			[]string{"source"},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcrawler_fetch_total",
				Help: "Outbound fetches, labeled by host and status.",
			},
			[]string{"host", "status"},
		)

		throttleDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leadcrawler_throttle_delay_seconds",
				Help:    "Histogram of per-host throttle waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		resolverStageTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcrawler_resolver_stage_total",
				Help: "Email resolver stage runs, labeled by stage and result.",
			},
			[]string{"stage", "result"},
		)

		checkpointSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadcrawler_checkpoint_saves_total",
				Help: "Checkpoint saves, labeled by artifact kind and status.",
			},
			[]string{"kind", "status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadcrawler_active_workers",
				Help: "Number of workers currently draining a (source, term) pair.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePosting counts one posting outcome (accepted, not_remote, no_email, duplicate, skipped).
func ObservePosting(source, outcome string) {
	Init()
	postingsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveLead counts one accepted lead.
func ObserveLead(source string) {
	Init()
	leadsTotal.WithLabelValues(source).Inc()
}

// ObserveFetch counts one outbound fetch.
func ObserveFetch(host, status string) {
	Init()
	fetchTotal.WithLabelValues(SanitizeSite(host), status).Inc()
}

// ObserveThrottleDelay records the duration of a throttle wait.
func ObserveThrottleDelay(host string, duration time.Duration) {
	Init()
	throttleDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveResolverStage counts one resolver stage run.
func ObserveResolverStage(stage string, found bool) {
	Init()
	result := "empty"
	if found {
		result = "found"
	}
	resolverStageTotal.WithLabelValues(stage, result).Inc()
}

// ObserveCheckpointSave counts one checkpoint save attempt.
func ObserveCheckpointSave(kind string, err error) {
	Init()
	status := "ok"
	if err != nil {
		status = "error"
	}
	checkpointSavesTotal.WithLabelValues(kind, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

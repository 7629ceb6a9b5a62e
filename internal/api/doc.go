// Package api hosts the optional HTTP status surface of a run. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/leads for the accepted leads (JSON, or CSV with ?format=csv).
//   - GET /v1/stats and /v1/run for counters and the run summary.
package api

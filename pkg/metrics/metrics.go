// Package metrics exposes the Prometheus registry used by the ranker.
// Metrics are defined next to the code that records them (retry, funda,
// pagination, ratelimit, agents); this package serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry. All metrics register via promauto.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewMux returns a mux serving /metrics and a /health liveness probe.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Metrics Documentation
//
// Feed Metrics (pkg/funda):
//   - funda_requests_total{status} (Counter): Feed requests by HTTP status or "network_error"
//   - funda_request_duration_seconds (Histogram): Feed request duration
//   - funda_errors_total{class} (Counter): Errors by class (auth, rate_limit, server, client, network, decode)
//
// Retry Metrics (pkg/retry):
//   - funda_retries_total{policy} (Counter): Retry attempts
//   - funda_retry_backoff_seconds{policy} (Histogram): Backoff before each retry
//   - funda_retry_exhausted_total{policy} (Counter): Operations that used the whole retry budget
//
// Pagination Metrics (pkg/pagination):
//   - funda_pages_fetched_total (Counter): Pages fetched successfully
//   - funda_throttle_pauses_total (Counter): Pauses inserted before every tenth page
//
// Rate Limit Metrics (pkg/ratelimit):
//   - funda_rate_limit_window_requests (Gauge): Requests recorded in the current minute
//   - funda_rate_limit_blocks_total (Counter): Requests delayed to the next minute
//   - funda_rate_limit_warnings_total (Counter): Requests made above 80% of the budget
//
// Query Metrics (pkg/agents):
//   - funda_queries_total{status} (Counter): Queries by outcome (success, error)
//   - funda_query_duration_seconds (Histogram): Duration of a full query
//   - funda_query_listings{search_path} (Gauge): Listings fetched by the last run of a search
//
// Example Prometheus Queries:
//
//   # Retry rate
//   rate(funda_retries_total[5m])
//
//   # Share of feed requests rejected with 429
//   rate(funda_requests_total{status="429"}[5m]) / rate(funda_requests_total[5m])
//
//   # P95 feed latency
//   histogram_quantile(0.95, rate(funda_request_duration_seconds_bucket[5m]))

// Package metrics exposes the crawler's Prometheus metrics.
// All metrics are defined in their respective packages (client, ratelimit)
// via promauto and registered with the default registry.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the crawler.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry Handler serves.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler for Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server exposing /metrics and /health on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", healthHandler)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - crawler_rate_limit_remaining (Gauge): Last observed X-Rate-Limit-Remaining
//   - crawler_rate_limit_backoffs_total{reason} (Counter): Coordinator sleeps by reason (window, header_anomaly)
//   - crawler_rate_limit_backoff_seconds{reason} (Histogram): Coordinator sleep duration by reason
//
// Request Metrics (pkg/client):
//   - crawler_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status (or network_error)
//   - crawler_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - crawler_records_fetched_total{operation} (Counter): Records returned to callers
//
// Retry Metrics (pkg/client):
//   - crawler_retries_total{outcome} (Counter): Failed attempts by outcome (throttled, unexpected, success)
//   - crawler_retry_exhausted_total{operation} (Counter): Operations that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Throttle Rate
//   rate(crawler_retries_total{outcome="throttled"}[5m])
//
//   # Window Nearly Spent
//   crawler_rate_limit_remaining <= 5
//
//   # Time Spent Backing Off
//   sum(rate(crawler_rate_limit_backoff_seconds_sum[1h]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(crawler_request_duration_seconds_bucket[5m]))

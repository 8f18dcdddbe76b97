// Package metrics provides Prometheus collectors for upstream requests and
// retrieval outcomes.
package metrics

import (
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "niftypulse"

// Metrics holds the collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	fetchRequests  *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	retrievalTotal *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Upstream HTTP requests by host and outcome (ok, network, timeout, status).",
		}, []string{"host", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Upstream HTTP request latency by host.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),
		retrievalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_total",
			Help:      "Retrieval results by operation and status.",
		}, []string{"operation", "status"}),
	}

	m.registry.MustRegister(
		m.fetchRequests,
		m.fetchDuration,
		m.retrievalTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry to expose over HTTP.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveFetch records one upstream request. Its signature matches
// infra.Observer.
func (m *Metrics) ObserveFetch(rawURL string, outcome string, elapsed time.Duration) {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	m.fetchRequests.WithLabelValues(host, outcome).Inc()
	m.fetchDuration.WithLabelValues(host).Observe(elapsed.Seconds())
}

// ObserveRetrieval records the final status of one retrieval operation.
func (m *Metrics) ObserveRetrieval(operation, status string) {
	m.retrievalTotal.WithLabelValues(operation, status).Inc()
}

// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency. Chat generation can take tens of seconds.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	AuthFailures *prometheus.CounterVec

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec
	UpstreamErrors    *prometheus.CounterVec

	knownPrefixes []string
}

// New creates a Metrics instance with a custom registry and all collectors registered.
// Path labels are bounded to the fixed gateway endpoints, the metrics endpoint
// and the given route prefixes. An empty metricsPath is ignored.
func New(metricsPath string, routePrefixes ...string) *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notus_gateway_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notus_gateway_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notus_gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notus_gateway_auth_failures_total",
			Help: "Rejected inbound requests by failure reason.",
		}, []string{"reason"}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notus_gateway_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"service", "method"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notus_gateway_upstream_responses_total",
			Help: "Total upstream responses by service, method and status code.",
		}, []string{"service", "method", "status_code"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notus_gateway_upstream_errors_total",
			Help: "Upstream transport failures by service and failure class.",
		}, []string{"service", "kind"}),

	}

	m.knownPrefixes = append(m.knownPrefixes, "/health", "/gateway/status")
	if metricsPath != "" {
		m.knownPrefixes = append(m.knownPrefixes, metricsPath)
	}
	m.knownPrefixes = append(m.knownPrefixes, routePrefixes...)

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.AuthFailures,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.UpstreamErrors,
	)

	return m
}

// ObserveRequest records one finished inbound request with bounded labels.
func (m *Metrics) ObserveRequest(method string, status int, path string, d time.Duration) {
	labels := []string{NormalizeMethod(method), strconv.Itoa(status), m.NormalizePath(path)}
	m.RequestsTotal.WithLabelValues(labels...).Inc()
	m.RequestDuration.WithLabelValues(labels...).Observe(d.Seconds())
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// NormalizePath returns a bounded path label for Prometheus metrics.
func (m *Metrics) NormalizePath(path string) string {
	if path == "/" {
		return "/"
	}
	best := ""
	for _, prefix := range m.knownPrefixes {
		if len(prefix) <= len(best) {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			best = prefix
		}
	}
	if best == "" {
		return "other"
	}
	return best
}

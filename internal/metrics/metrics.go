// Package metrics exports HTTP request metrics for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
	csrf     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adminkit",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adminkit",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		csrf: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adminkit",
			Name:      "csrf_rejections_total",
			Help:      "Mutating requests rejected for a missing or stale CSRF token.",
		}, []string{"method"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.duration,
		m.requests,
		m.csrf,
	)
	return m
}

// Observe records one finished request.
func (m *Metrics) Observe(route, method string, status int, elapsed time.Duration) {
	m.duration.WithLabelValues(route, method).Observe(elapsed.Seconds())
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// CSRFRejected counts a request refused by the CSRF guard.
func (m *Metrics) CSRFRejected(method string) {
	m.csrf.WithLabelValues(method).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

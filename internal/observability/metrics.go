package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "kmun"

// Metrics holds the Prometheus collectors exported by the service.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	errorsTotal         *prometheus.CounterVec
	submissionsTotal    *prometheus.CounterVec
	allocationFailures  prometheus.Counter
	notificationsTotal  *prometheus.CounterVec
	notificationsQueued *prometheus.CounterVec
}

// NewMetrics registers the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Error responses by route, method and error code.",
		}, []string{"route", "method", "code"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "registration",
			Name:      "submissions_total",
			Help:      "Accepted registration submissions by account and registration outcome.",
		}, []string{"account", "registration"}),
		allocationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "registration",
			Name:      "allocation_failures_total",
			Help:      "Submissions rejected because no external identifier could be issued.",
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by kind and result.",
		}, []string{"kind", "result"}),
		notificationsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "notification",
			Name:      "enqueued_total",
			Help:      "Notifications placed on the delivery queue by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.errorsTotal,
		m.submissionsTotal,
		m.allocationFailures,
		m.notificationsTotal,
		m.notificationsQueued,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(route, method, code).Inc()
}

// RecordSubmission counts an accepted submission.
func (m *Metrics) RecordSubmission(accountOutcome, registrationOutcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(accountOutcome, registrationOutcome).Inc()
}

// RecordAllocationFailure counts a submission lost to identifier exhaustion.
func (m *Metrics) RecordAllocationFailure() {
	if m == nil {
		return
	}
	m.allocationFailures.Inc()
}

// RecordNotificationQueued counts an enqueued notification.
func (m *Metrics) RecordNotificationQueued(kind string) {
	if m == nil {
		return
	}
	m.notificationsQueued.WithLabelValues(kind).Inc()
}

// RecordDelivery counts a delivery attempt; result is sent, retried or dropped.
func (m *Metrics) RecordDelivery(kind, result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, result).Inc()
}

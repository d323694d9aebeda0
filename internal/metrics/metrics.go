package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP and portal metrics. They are registered on the manager's registry the
// first time EnableBusinessMetrics is called; until then the Record helpers
// are no-ops.
var (
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPActiveConnections prometheus.Gauge

	SampleTransitionsTotal    *prometheus.CounterVec
	RequestStatusChangesTotal *prometheus.CounterVec
	SubmissionsTotal          *prometheus.CounterVec
	DegradedResponsesTotal    *prometheus.CounterVec

	businessOnce    sync.Once
	businessEnabled bool
)

func initializeBusinessMetrics() {
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of in-flight HTTP requests",
		},
	)

	SampleTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labportal_sample_transitions_total",
			Help: "Testing sample status changes by target status",
		},
		[]string{"to"},
	)

	RequestStatusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labportal_request_status_changes_total",
			Help: "Request status changes caused by sample updates",
		},
		[]string{"to"},
	)

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labportal_submissions_total",
			Help: "Request submissions by type and result",
		},
		[]string{"type", "result"}, // "created", "invalid", "conflict", "error"
	)

	DegradedResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labportal_degraded_responses_total",
			Help: "Responses served with state unavailable after a store failure",
		},
		[]string{"endpoint"},
	)

	GetInstance().registry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPActiveConnections,
		SampleTransitionsTotal,
		RequestStatusChangesTotal,
		SubmissionsTotal,
		DegradedResponsesTotal,
	)
}

// EnableBusinessMetrics registers the HTTP and portal metrics
func EnableBusinessMetrics() {
	businessOnce.Do(func() {
		initializeBusinessMetrics()
		businessEnabled = true
	})
}

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if !businessEnabled {
		return
	}
	status := strconv.Itoa(statusCode)
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordSampleTransition counts a sample moving to status to, and the request
// status it caused when requestTo is not empty.
func RecordSampleTransition(to, requestTo string) {
	if !businessEnabled {
		return
	}
	SampleTransitionsTotal.WithLabelValues(to).Inc()
	if requestTo != "" {
		RequestStatusChangesTotal.WithLabelValues(requestTo).Inc()
	}
}

// RecordSubmission counts a submission attempt
func RecordSubmission(requestType, result string) {
	if !businessEnabled {
		return
	}
	SubmissionsTotal.WithLabelValues(requestType, result).Inc()
}

// RecordDegraded counts a response that hid a store failure
func RecordDegraded(endpoint string) {
	if !businessEnabled {
		return
	}
	DegradedResponsesTotal.WithLabelValues(endpoint).Inc()
}

func incActiveConnections() {
	if businessEnabled {
		HTTPActiveConnections.Inc()
	}
}

func decActiveConnections() {
	if businessEnabled {
		HTTPActiveConnections.Dec()
	}
}

// Handler serves the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(GetInstance().registry, promhttp.HandlerOpts{})
}

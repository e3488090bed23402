package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RequestMetrics instruments the web service: HTTP traffic per handler, and
// stored uploads per namespace.
type RequestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	uploads     *prometheus.CounterVec
	uploadBytes *prometheus.CounterVec
}

// NewRequestMetrics creates the web service collectors on reg.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	return &RequestMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropdock_http_requests_total",
				Help: "Count of HTTP requests served, per handler.",
			}, []string{"handler", "method", "code"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dropdock_http_request_duration_seconds",
				Help: "Latency of HTTP requests, per handler.",
				// Request durations skew small unless something is wrong. Max of 10.24.
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			}, []string{"handler", "method", "code"},
		),
		uploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropdock_uploads_stored_total",
				Help: "Count of uploads stored, per namespace and write mode.",
			}, []string{"namespace", "mode"},
		),
		uploadBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropdock_uploads_stored_bytes_total",
				Help: "Total bytes of stored uploads, per namespace.",
			}, []string{"namespace"},
		),
	}
}

// Instrument wraps handler so its requests are counted and timed under name.
func (m *RequestMetrics) Instrument(name string, handler http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerCounter(
		m.requests.MustCurryWith(labels),
		promhttp.InstrumentHandlerDuration(
			m.duration.MustCurryWith(labels),
			handler,
		),
	)
}

// RecordUpload accounts one stored upload of size bytes.
func (m *RequestMetrics) RecordUpload(namespace, mode string, size int64) {
	m.uploads.WithLabelValues(namespace, mode).Inc()
	m.uploadBytes.WithLabelValues(namespace).Add(float64(size))
}

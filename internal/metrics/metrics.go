package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"kind"}, // "rule", "burst", "manual"
	)

	AuthFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Failed authentication attempts.",
	})

	CSRFFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "csrf_failures_total",
		Help: "Requests rejected by the CSRF guard.",
	})

	ThreatDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threat_detections_total",
			Help: "Requests flagged by the threat detector.",
		},
		[]string{"severity"},
	)

	ValidationRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validation_rejections_total",
		Help: "Requests rejected by input validation or sanitization.",
	})
)

func Init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		RateLimitRejections,
		AuthFailures,
		CSRFFailures,
		ThreatDetections,
		ValidationRejections,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records the outcome of one completed request. Paths are not
// labeled to keep cardinality bounded.
func ObserveRequest(method string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, code).Inc()
	httpRequestDuration.WithLabelValues(method, code).Observe(duration.Seconds())
}

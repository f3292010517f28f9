package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hrease_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hrease_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	authEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hrease_auth_events_total",
		Help: "Credential flow outcomes by operation and result",
	}, []string{"operation", "result"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hrease_notifications_total",
		Help: "Outbound notifications by kind and result (queued, dropped, sent, failed)",
	}, []string{"kind", "result"})

	logArchiveFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hrease_log_archive_flushes_total",
		Help: "Log archive batch uploads by result",
	}, []string{"result"})

	logArchiveDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hrease_log_archive_dropped_lines_total",
		Help: "Log lines dropped because the archive buffer was full",
	})
)

// ObserveHTTPRequest records an HTTP request metric.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveAuth counts a credential flow outcome, e.g. ("login", "success").
func ObserveAuth(operation, result string) {
	authEvents.WithLabelValues(operation, result).Inc()
}

func ObserveNotification(kind, result string) {
	notifications.WithLabelValues(kind, result).Inc()
}

func ObserveLogArchiveFlush(result string) {
	logArchiveFlushes.WithLabelValues(result).Inc()
}

func IncLogArchiveDropped() {
	logArchiveDropped.Inc()
}

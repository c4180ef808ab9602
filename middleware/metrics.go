package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"routing_key"},
	)

	eventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total number of events consumed from the bus",
		},
		[]string{"routing_key", "result"},
	)

	dispatchAssignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_assignments_total",
			Help: "Rider assignment attempts by outcome",
		},
		[]string{"result"},
	)

	riderReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rider_releases_total",
			Help: "Rider release attempts by outcome",
		},
		[]string{"result"},
	)

	reconciliationRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_runs_total",
			Help: "Total number of reconciliation passes",
		},
	)

	reconciliationOrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_orders_total",
			Help: "Stuck orders seen by reconciliation, by outcome",
		},
		[]string{"result"},
	)

	notificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications sent",
		},
		[]string{"event_type"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(eventsPublishedTotal)
	prometheus.MustRegister(eventsConsumedTotal)
	prometheus.MustRegister(dispatchAssignmentsTotal)
	prometheus.MustRegister(riderReleasesTotal)
	prometheus.MustRegister(reconciliationRunsTotal)
	prometheus.MustRegister(reconciliationOrdersTotal)
	prometheus.MustRegister(notificationsSentTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordEventPublished(routingKey string) {
	eventsPublishedTotal.WithLabelValues(routingKey).Inc()
}

func RecordEventConsumed(routingKey, result string) {
	eventsConsumedTotal.WithLabelValues(routingKey, result).Inc()
}

func RecordAssignment(result string) {
	dispatchAssignmentsTotal.WithLabelValues(result).Inc()
}

func RecordRelease(result string) {
	riderReleasesTotal.WithLabelValues(result).Inc()
}

func RecordReconciliationRun() {
	reconciliationRunsTotal.Inc()
}

func RecordReconciledOrder(result string) {
	reconciliationOrdersTotal.WithLabelValues(result).Inc()
}

func RecordNotificationSent(eventType string) {
	notificationsSentTotal.WithLabelValues(eventType).Inc()
}

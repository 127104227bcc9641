package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	requestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	requestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "Size of HTTP requests in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware collects Prometheus metrics for HTTP requests
type MetricsMiddleware struct{}

// NewMetricsMiddleware creates a new metrics middleware
func NewMetricsMiddleware() *MetricsMiddleware {
	return &MetricsMiddleware{}
}

// CollectMetrics records duration, count and payload size per route. The
// route template is used rather than the raw URL so session ids don't explode
// label cardinality.
func (m *MetricsMiddleware) CollectMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		if c.Request.ContentLength > 0 {
			requestSize.WithLabelValues(method, path).Observe(float64(c.Request.ContentLength))
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		requestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		requestTotal.WithLabelValues(method, path, status).Inc()
	}
}

package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AnalyticsCacheOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_cache_ops_total",
			Help: "Cross-course analytics cache hits and misses",
		},
		[]string{"result"}, // hit | miss
	)

	GapAlertsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gap_alerts_generated_total",
			Help: "Instructor gap alerts generated",
		},
	)

	DependenciesDiscovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knowledge_dependencies_discovered_total",
			Help: "Knowledge dependencies materialized by the mapper",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(AnalyticsCacheOps)
	prometheus.MustRegister(GapAlertsGenerated)
	prometheus.MustRegister(DependenciesDiscovered)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

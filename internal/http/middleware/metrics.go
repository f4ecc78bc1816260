// Prometheus instrumentation for HTTP traffic.
//
// Labels are kept to method, registered route path, and status code so
// cardinality stays bounded: raw URLs (which embed request and session UUIDs)
// are only used when no route matched.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is omitted here to keep histogram cardinality down.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// chatOutcomes counts resolved chat requests by outcome (accepted,
	// rejected, canceled). Incremented by the handlers via CountOutcome.
	chatOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_request_outcomes_total",
			Help: "Chat requests resolved, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, chatOutcomes)
}

// CountOutcome records one resolved chat request.
func CountOutcome(outcome string) {
	chatOutcomes.WithLabelValues(outcome).Inc()
}

// Metrics instruments each request with the collectors above. Mount the
// exposition endpoint separately:
//
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

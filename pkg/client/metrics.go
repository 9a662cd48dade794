package client

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts practice queries by status class
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pql_requests_total",
		Help: "Total practice queries by response status class",
	}, []string{"status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pql_request_duration_seconds",
		Help:    "Practice query round trip in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"status"})
)

// statusClass maps 200 to "2xx" and a missing response to "error".
func statusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return fmt.Sprintf("%dxx", code/100)
}

func observe(code int, latency time.Duration) {
	class := statusClass(code)
	requestsTotal.WithLabelValues(class).Inc()
	requestDuration.WithLabelValues(class).Observe(latency.Seconds())
}

package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_client",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Backend calls grouped by operation and outcome.",
	}, []string{"operation", "outcome"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fitness_client",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Latency of backend calls per operation.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation"})

	invalidationCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitness_client",
		Subsystem: "gateway",
		Name:      "session_invalidations_total",
		Help:      "Number of 401 responses that forced the session back to anonymous.",
	})
)

func init() {
	prometheus.MustRegister(requestCounter, requestDuration, invalidationCounter)
}

func recordRequest(operation, outcome string, elapsed time.Duration) {
	requestCounter.WithLabelValues(operation, outcome).Inc()
	requestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func recordInvalidation() {
	invalidationCounter.Inc()
}

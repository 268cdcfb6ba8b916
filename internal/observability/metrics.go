// Package observability holds process-wide prometheus collectors shared by the client controllers.
// They register on the default registry; the embedding process decides how to export them.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_client",
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session state transitions grouped by target state and cause.",
	}, []string{"to", "cause"})

	lastAuthenticatedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitness_client",
		Subsystem: "session",
		Name:      "last_authenticated_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sign-in.",
	})

	viewResolvedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_client",
		Subsystem: "view",
		Name:      "loads_resolved_total",
		Help:      "View loads that reached a terminal state, grouped by view, status and error kind.",
	}, []string{"view", "status", "kind"})

	viewStaleCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_client",
		Subsystem: "view",
		Name:      "stale_results_total",
		Help:      "Results discarded because the load was superseded or the view was closed.",
	}, []string{"view"})
)

func init() {
	prometheus.MustRegister(sessionTransitionCounter, lastAuthenticatedGauge, viewResolvedCounter, viewStaleCounter)
}

// RecordSessionTransition counts a transition into state to.
func RecordSessionTransition(to, cause string) {
	sessionTransitionCounter.WithLabelValues(to, cause).Inc()
}

// RecordAuthenticated updates the sign-in watermark gauge.
func RecordAuthenticated(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastAuthenticatedGauge.Set(float64(ts.Unix()))
}

// RecordViewResolved counts a load that finished with status.
func RecordViewResolved(view, status, kind string) {
	viewResolvedCounter.WithLabelValues(view, status, kind).Inc()
}

// RecordStaleResult counts a discarded result.
func RecordStaleResult(view string) {
	viewStaleCounter.WithLabelValues(view).Inc()
}

package devserver

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_devbackend",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Requests served grouped by method, route and status.",
	}, []string{"method", "route", "status"})

	activitiesCreatedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_devbackend",
		Subsystem: "activities",
		Name:      "created_total",
		Help:      "Activities created grouped by type.",
	}, []string{"activity_type"})

	recommendationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_devbackend",
		Subsystem: "recommendations",
		Name:      "generated_total",
		Help:      "Recommendation bundles generated grouped by activity type.",
	}, []string{"activity_type"})

	tokensIssuedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fitness_devbackend",
		Subsystem: "idp",
		Name:      "tokens_issued_total",
		Help:      "Access tokens issued by the fake identity provider.",
	})
)

func init() {
	prometheus.MustRegister(httpRequestCounter, activitiesCreatedCounter, recommendationsCounter, tokensIssuedCounter)
}

func recordHTTPRequest(method, route string, status int) {
	httpRequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func recordActivityCreated(activityType string) {
	activitiesCreatedCounter.WithLabelValues(activityType).Inc()
}

func recordRecommendation(activityType string) {
	recommendationsCounter.WithLabelValues(activityType).Inc()
}

func recordTokenIssued() {
	tokensIssuedCounter.Inc()
}

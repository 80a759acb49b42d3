package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "provider_requests_total",
			Help:      "Total HTTP requests made to chat providers.",
		},
		[]string{"provider", "operation", "outcome"}, // outcome: "success", "error"
	)

	providerRequestDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of HTTP requests to chat providers.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)
)

func observeRequest(provider, operation string, success bool, seconds float64) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	providerRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	providerRequestDurationHist.WithLabelValues(provider, operation).Observe(seconds)
}

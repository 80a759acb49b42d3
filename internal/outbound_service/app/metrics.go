package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outboundJobsSubmittedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "outbound_jobs_submitted_total",
			Help:      "Total outbound jobs accepted for delivery.",
		},
		[]string{"kind"},
	)

	outboundJobsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "outbound_jobs_processed_total",
			Help:      "Total outbound job attempts by outcome.",
		},
		[]string{"status"}, // delivered, retrying, failed, rate_limited
	)

	outboundJobDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "outbound_job_processing_duration_seconds",
			Help:      "Duration of one outbound job attempt.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	outboundQueueDepthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "outbound_queue_depth",
			Help:      "Outbound jobs per status.",
		},
		[]string{"status"},
	)
)

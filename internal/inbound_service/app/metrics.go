package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inboundMessagesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "inbound_messages_received_total",
			Help:      "Total inbound messages accepted into the durable queue.",
		},
		[]string{"provider"},
	)

	inboundMessagesProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "inbound_messages_processed_total",
			Help:      "Total inbound messages processed by outcome.",
		},
		[]string{"provider", "status"}, // processed, duplicate, error
	)

	inboundProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "inbound_processing_duration_seconds",
			Help:      "Duration of inbound message processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

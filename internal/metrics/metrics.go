package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundwater_provider_calls_total",
			Help: "Total groundwater provider calls",
		},
		[]string{"status"},
	)

	ProviderLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "groundwater_provider_latency_seconds",
			Help:    "Groundwater provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NormalizeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundwater_normalize_rejections_total",
			Help: "Provider payloads rejected during normalization",
		},
		[]string{"reason"},
	)

	LLMCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundwater_llm_calls_total",
			Help: "Total language model calls",
		},
		[]string{"purpose", "status"},
	)

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundwater_turns_total",
			Help: "Completed conversation turns by outcome",
		},
		[]string{"kind"},
	)

	MessageLogFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groundwater_message_log_failures_total",
			Help: "Message log writes that failed and were dropped",
		},
	)
)

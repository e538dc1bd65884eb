// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Turns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ptidm_turns_total",
		Help: "Total dialogue turns processed",
	})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ptidm_turn_duration_seconds",
		Help:    "Time from user confusion network to system act",
		Buckets: prometheus.ExponentialBuckets(0.001, 2.5, 10),
	})

	// Labelled by the DAT of the first system item (hello, request, inform, ...).
	PolicyActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptidm_policy_actions_total",
		Help: "System acts emitted by the policy",
	}, []string{"action"})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ptidm_provider_requests_total",
		Help: "External provider requests by outcome",
	}, []string{"provider", "outcome"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ptidm_provider_latency_seconds",
		Help:    "External provider latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
	}, []string{"provider"})

	OpenDialogues = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ptidm_open_dialogues",
		Help: "Dialogues currently open in the hub",
	})
)

// ObserveProvider counts one provider call and records its latency.
func ObserveProvider(provider, outcome string, start time.Time) {
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

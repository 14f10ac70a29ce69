package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cascade tier labels for SearchTierTotal.
const (
	TierStrong     = "strong"
	TierBase       = "base"
	TierUnfiltered = "unfiltered"
	TierEmpty      = "empty"
)

// Search and transcription Prometheus metrics.
var (
	SearchTierTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habita",
			Name:      "search_tier_total",
			Help:      "Searches answered per cascade tier (strong/base/unfiltered/empty)",
		},
		[]string{"tier"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "habita",
			Name:      "search_duration_seconds",
			Help:      "End-to-end retrieval duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	TranscriptionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "habita",
			Name:      "transcription_requests_total",
			Help:      "Total transcription attempts per provider",
		},
		[]string{"provider", "status"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers retrieval metrics. Must be called once
// from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchTierTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(TranscriptionRequestsTotal)
	searchMetricsRegistered = true
}

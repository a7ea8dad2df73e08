// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing helpers shared by the cache protocol components.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics holds all Prometheus metrics for the cache protocol.
type CacheMetrics struct {
	// Promotion metrics
	PromotionsTotal   *prometheus.CounterVec
	PromotionSeconds  *prometheus.HistogramVec
	PromotionsSkipped *prometheus.CounterVec
	FanoutTruncations prometheus.Counter

	// Scoring metrics
	ScoreEventsTotal   *prometheus.CounterVec
	ScoreEventsDropped prometheus.Counter
	ValidationsTotal   prometheus.Counter

	// Graduation metrics
	GraduationsTotal  *prometheus.CounterVec
	GraduationSeconds prometheus.Histogram
	RollbacksTotal    prometheus.Counter

	// Sweeper metrics
	SweptEdgesTotal prometheus.Counter
	SweepSeconds    prometheus.Histogram
	LiveEdges       *prometheus.GaugeVec

	// Read metrics
	ReadsTotal           *prometheus.CounterVec
	ExpiredEdgesFiltered prometheus.Counter
	FallbackReadsTotal   prometheus.Counter
}

// DefaultCacheMetrics creates metrics registered on the default registerer.
func DefaultCacheMetrics() *CacheMetrics {
	return NewCacheMetrics(prometheus.DefaultRegisterer)
}

// NewCacheMetrics creates a new set of cache metrics.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	factory := promauto.With(reg)

	return &CacheMetrics{
		// Promotion metrics
		PromotionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_promotions_total",
				Help: "Edges promoted into the short-term plane",
			},
			[]string{"status"},
		),
		PromotionSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engram_promotion_seconds",
				Help:    "Promotion latency per entity",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"status"},
		),
		PromotionsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_promotions_skipped_total",
				Help: "Promotion candidates skipped, by reason",
			},
			[]string{"reason"},
		),
		FanoutTruncations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engram_fanout_truncations_total",
				Help: "Neighbourhood queries truncated at the fanout bound",
			},
		),

		// Scoring metrics
		ScoreEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_score_events_total",
				Help: "Reinforcement events applied, by kind",
			},
			[]string{"kind"},
		),
		ScoreEventsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engram_score_events_dropped_total",
				Help: "Reinforcement events abandoned after retry exhaustion",
			},
		),
		ValidationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engram_validations_total",
				Help: "Edges that crossed the validation threshold",
			},
		),

		// Graduation metrics
		GraduationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_graduations_total",
				Help: "Graduation attempts, by status",
			},
			[]string{"status"},
		),
		GraduationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engram_graduation_seconds",
				Help:    "Graduation pass latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
		RollbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engram_rollbacks_total",
				Help: "Graduations reversed",
			},
		),

		// Sweeper metrics
		SweptEdgesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engram_swept_edges_total",
				Help: "Expired edges removed by the sweeper",
			},
		),
		SweepSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engram_sweep_seconds",
				Help:    "Sweep pass latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
		LiveEdges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "engram_live_edges",
				Help: "Live edges observed by the last sweep, by plane",
			},
			[]string{"plane"},
		),

		// Read metrics
		ReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engram_reads_total",
				Help: "Entity neighbourhood reads, by plane",
			},
			[]string{"plane"},
		),
		ExpiredEdgesFiltered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engram_expired_edges_filtered_total",
				Help: "Expired edges hidden by read-time filtering",
			},
		),
		FallbackReadsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "engram_fallback_reads_total",
				Help: "Reads served from the long-term plane after a short-term failure",
			},
		),
	}
}

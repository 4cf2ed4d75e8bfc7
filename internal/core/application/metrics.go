package application

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type nodeMetrics struct {
	CurrentRound       prometheus.Gauge
	LastProcessedRound prometheus.Gauge
	RoundWatermark     prometheus.Gauge
	ActiveLanes        *prometheus.GaugeVec
	ScheduledTasks     prometheus.Gauge

	EventsObserved     *prometheus.CounterVec
	Submissions        *prometheus.CounterVec
	SubmissionFailures *prometheus.CounterVec
	RoundsAggregated   prometheus.Counter
	RoundsSkipped      *prometheus.CounterVec
	FailedReveals      prometheus.Counter
	Finalizations      *prometheus.CounterVec
	AggregationLatency prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metrics     *nodeMetrics
)

func newNodeMetrics() *nodeMetrics {
	metricsOnce.Do(func() {
		metrics = &nodeMetrics{
			CurrentRound: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "ftso",
				Subsystem: "node",
				Name:      "current_round",
				Help:      "Round the node is committing for",
			}),
			LastProcessedRound: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "ftso",
				Subsystem: "node",
				Name:      "last_processed_round",
				Help:      "Last round whose reward claims were processed",
			}),
			RoundWatermark: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "ftso",
				Subsystem: "node",
				Name:      "round_watermark",
				Help:      "Highest round finalized on chain",
			}),
			ActiveLanes: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "ftso",
					Subsystem: "node",
					Name:      "active_lanes",
					Help:      "Open processing lanes",
				},
				[]string{"scope"},
			),
			ScheduledTasks: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "ftso",
				Subsystem: "node",
				Name:      "scheduled_tasks",
				Help:      "Phase tasks waiting for their deadline",
			}),
			EventsObserved: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "ftso",
					Subsystem: "node",
					Name:      "events_observed_total",
					Help:      "Protocol events received from the event stream",
				},
				[]string{"type"},
			),
			Submissions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "ftso",
					Subsystem: "node",
					Name:      "submissions_total",
					Help:      "Actions submitted on chain",
				},
				[]string{"action"},
			),
			SubmissionFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "ftso",
					Subsystem: "node",
					Name:      "submission_failures_total",
					Help:      "Actions rejected on submission",
				},
				[]string{"action"},
			),
			RoundsAggregated: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "ftso",
				Subsystem: "node",
				Name:      "rounds_aggregated_total",
				Help:      "Rounds with a signed merkle root",
			}),
			RoundsSkipped: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "ftso",
					Subsystem: "node",
					Name:      "rounds_skipped_total",
					Help:      "Rounds skipped because of a recoverable error",
				},
				[]string{"reason"},
			),
			FailedReveals: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "ftso",
				Subsystem: "node",
				Name:      "failed_reveals_total",
				Help:      "Voters that committed without a valid reveal",
			}),
			Finalizations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "ftso",
					Subsystem: "node",
					Name:      "finalizations_total",
					Help:      "Finalizations observed on chain",
				},
				[]string{"scope"},
			),
			AggregationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "ftso",
				Subsystem: "node",
				Name:      "aggregation_seconds",
				Help:      "Time spent aggregating a round",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			}),
		}
	})
	return metrics
}

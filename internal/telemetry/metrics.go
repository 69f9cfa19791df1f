// Package telemetry exposes sync-round metrics on the Prometheus default
// registry, served on the messaging surface's /metrics endpoint.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tabwarden",
		Name:      "sync_rounds_total",
		Help:      "Sync rounds by outcome.",
	}, []string{"outcome"})

	metricRoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tabwarden",
		Name:      "sync_round_duration_seconds",
		Help:      "Wall-clock duration of completed sync rounds.",
		Buckets:   prometheus.DefBuckets,
	})

	metricTrackedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tabwarden",
		Name:      "tracked_items",
		Help:      "Item count produced by the most recent sync round.",
	})

	metricContainerRecreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tabwarden",
		Name:      "container_recreations_total",
		Help:      "Times a stale container was recreated during a round.",
	})
)

// Round outcomes recorded on the sync_rounds_total counter.
const (
	OutcomeSuccess         = "success"
	OutcomeFailure         = "failure"
	OutcomeSkippedAuth     = "skipped_unauthenticated"
	OutcomeSkippedBusy     = "skipped_busy"
	OutcomeSkippedNotReady = "skipped_not_ready"
)

// RecordRound records the outcome and duration of one sync round.
func RecordRound(outcome string, elapsed time.Duration) {
	metricRounds.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeFailure {
		metricRoundDuration.Observe(elapsed.Seconds())
	}
}

// RecordItemCount records the desired-item count of the latest round.
func RecordItemCount(n int) {
	metricTrackedItems.Set(float64(n))
}

// RecordContainerRecreated counts a recreate-and-retry cycle.
func RecordContainerRecreated() {
	metricContainerRecreated.Inc()
}

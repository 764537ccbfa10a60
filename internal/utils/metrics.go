package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the sync and trigger paths. Counter-write
// failures and reconcile drift are the signals that matter operationally:
// the former tells you a cached summary may be stale, the latter how far
// off it actually was when reconciliation caught it.
var (
	CounterWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bayou_summary_counter_write_failures_total",
			Help: "Failed summary-counter writes, by parent collection.",
		},
		[]string{"collection"},
	)

	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bayou_reconcile_runs_total",
			Help: "Summary reconciliation runs, by outcome.",
		},
		[]string{"outcome"},
	)

	ReconcileDrift = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bayou_reconcile_drift",
			Help:    "Absolute difference between cached and recomputed counters at reconcile time.",
			Buckets: []float64{0, 1, 2, 5, 10, 50, 100},
		},
	)

	TriggerDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bayou_trigger_deliveries_total",
			Help: "Trigger handler invocations, by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)

	SnapshotFanout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bayou_snapshot_fanout_seconds",
			Help:    "Time to deliver a collection snapshot to all watchers.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

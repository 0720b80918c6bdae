// Package metrics provides Prometheus metrics for the Valan feed pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestedRowsTotal tracks source rows written by ingestion
	IngestedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valan",
			Subsystem: "ingest",
			Name:      "rows_total",
			Help:      "Total number of source rows ingested by kind",
		},
		[]string{"kind"},
	)

	// ExtractedOrganizationsTotal tracks organization aggregates written
	ExtractedOrganizationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "valan",
			Subsystem: "extract",
			Name:      "organizations_total",
			Help:      "Total number of organization aggregates written",
		},
	)

	// ExtractedAwardsTotal tracks awards consumed by extraction
	ExtractedAwardsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "valan",
			Subsystem: "extract",
			Name:      "awards_consumed_total",
			Help:      "Total number of awards consumed by organization extraction",
		},
	)

	// FedRowsTotal tracks rows projected into the master schema
	FedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valan",
			Subsystem: "feed",
			Name:      "rows_total",
			Help:      "Total number of rows projected into the master schema by kind",
		},
		[]string{"kind"},
	)

	// RejectedRowsTotal tracks rows rejected during projection
	RejectedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valan",
			Subsystem: "feed",
			Name:      "rejected_rows_total",
			Help:      "Total number of rows rejected during projection by kind",
		},
		[]string{"kind"},
	)

	// FeedRunDuration tracks orchestrated feed run duration in seconds
	FeedRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "valan",
			Subsystem: "feed",
			Name:      "run_duration_seconds",
			Help:      "Duration of orchestrated feed runs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// FeedRunsTotal tracks orchestrated feed runs by outcome
	FeedRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valan",
			Subsystem: "feed",
			Name:      "runs_total",
			Help:      "Total number of orchestrated feed runs by status",
		},
		[]string{"status"},
	)

	// LockContentionTotal tracks runs skipped because another holder had the lock
	LockContentionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valan",
			Subsystem: "feed",
			Name:      "lock_contention_total",
			Help:      "Total number of runs skipped due to lock contention",
		},
		[]string{"operation"},
	)
)

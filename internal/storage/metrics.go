package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDurationSeconds tracks storage operation latency by backend.
	OperationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polymarkettracker_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// OperationErrorsTotal tracks failed storage operations.
	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarkettracker_storage_operation_errors_total",
		Help: "Total number of failed storage operations",
	}, []string{"backend", "operation"})

	// SnapshotCacheHitsTotal tracks latest-snapshot cache hits.
	SnapshotCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_storage_snapshot_cache_hits_total",
		Help: "Total number of latest snapshot cache hits",
	})

	// SnapshotCacheMissesTotal tracks latest-snapshot cache misses.
	SnapshotCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarkettracker_storage_snapshot_cache_misses_total",
		Help: "Total number of latest snapshot cache misses",
	})
)

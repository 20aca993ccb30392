package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	historyWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_writes_total",
			Help: "Total history records written, by action",
		},
		[]string{"action"},
	)

	versionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "history_version_conflicts_total",
			Help: "Version allocation races resolved by retry",
		},
	)

	historyPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "history_pruned_records_total",
			Help: "History records removed by count-based pruning",
		},
	)

	cleanupDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_cleanup_deleted_total",
			Help: "History records removed by cleanup jobs",
		},
		[]string{"job"},
	)
)

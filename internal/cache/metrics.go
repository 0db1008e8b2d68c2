package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// normalizePasses counts normalization passes.
	// Labels: outcome (ok or an error kind)
	normalizePasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "normcache",
		Subsystem: "normalize",
		Name:      "passes_total",
		Help:      "Normalization passes by outcome",
	}, []string{"outcome"})

	// recordsChanged counts records inserted or modified by normalization.
	// Labels: type
	recordsChanged = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "normcache",
		Subsystem: "normalize",
		Name:      "records_changed_total",
		Help:      "Records inserted or modified by normalization, by type",
	}, []string{"type"})

	// queries counts queries answered from the cache.
	// Labels: outcome (ok or an error kind)
	queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "normcache",
		Subsystem: "query",
		Name:      "total",
		Help:      "Queries answered from the cache by outcome",
	}, []string{"outcome"})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "normcache",
		Subsystem: "query",
		Name:      "duration_seconds",
		Help:      "Time to answer a query from the cache",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// snapshotWrites counts background snapshot writes.
	// Labels: driver, outcome (ok, error, skipped)
	snapshotWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "normcache",
		Subsystem: "snapshot",
		Name:      "writes_total",
		Help:      "Snapshot writes by driver and outcome",
	}, []string{"driver", "outcome"})

	clears = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "normcache",
		Name:      "clears_total",
		Help:      "Full cache resets",
	})
)

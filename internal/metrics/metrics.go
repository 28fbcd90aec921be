// Package metrics holds the Prometheus collectors exported on the metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DirectoryCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orgchart",
		Name:      "directory_calls_total",
		Help:      "Directory requests by operation and outcome.",
	}, []string{"operation", "outcome"})

	SharedChildLoads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orgchart",
		Name:      "shared_child_loads_total",
		Help:      "Direct-report loads answered by an in-flight request for the same node.",
	})

	TreeBuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orgchart",
		Name:      "tree_build_seconds",
		Help:      "Time spent deriving the visible tree.",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
	})

	ActiveCharts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orgchart",
		Name:      "active_charts",
		Help:      "Chart sessions held in memory.",
	})
)

// ObserveDirectoryCall counts one directory request.
func ObserveDirectoryCall(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	DirectoryCalls.WithLabelValues(operation, outcome).Inc()
}

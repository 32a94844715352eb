package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricGathers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaptable_catalog_gathers_total",
			Help: "Gathered columns by outcome (ok, error_result, failed).",
		}, []string{"outcome"})

	metricGatherSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leaptable_catalog_gather_seconds",
		Help:    "Time spent evaluating a successfully gathered column.",
		Buckets: prometheus.DefBuckets,
	})
)

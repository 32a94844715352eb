package column

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaptable_column_fetches_total",
			Help: "Column fetches by outcome (ok, error_result, transport_error, stale).",
		}, []string{"outcome"})

	metricRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaptable_column_cache_requests_total",
			Help: "Column requests by cache result (hit, miss, joined).",
		}, []string{"result"})

	metricPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leaptable_column_pending_requests",
		Help: "Column fetches currently in flight.",
	})
)

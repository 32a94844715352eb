package live

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "leaptable_live_sessions",
	Help: "Browser sessions currently held in memory.",
})

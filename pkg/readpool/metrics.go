package readpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pool gauges and counters, labeled by pool name. Registered once on the
// default registry; every pool instance shares the series of its label.
var (
	runningTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tikv",
		Subsystem: "readpool",
		Name:      "running_tasks",
		Help:      "Accepted but not yet completed closures per pool.",
	}, []string{"pool"})

	handledTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tikv",
		Subsystem: "readpool",
		Name:      "handled_tasks_total",
		Help:      "Closures completed per pool.",
	}, []string{"pool"})
)

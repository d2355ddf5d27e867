package telemetry

import "github.com/prometheus/client_golang/prometheus"

var NodesRegisteredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "meshd",
		Subsystem: "nodes",
		Name:      "registered_total",
		Help:      "Total number of successful node registrations.",
	},
)

var TasksEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "meshd",
		Subsystem: "tasks",
		Name:      "enqueued_total",
		Help:      "Total number of tasks enqueued, by kind.",
	},
	[]string{"kind"},
)

var TaskHandlerDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "meshd",
		Subsystem: "tasks",
		Name:      "handler_duration_seconds",
		Help:      "Task handler execution duration in seconds, by kind.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"kind"},
)

var ExternalCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "meshd",
		Subsystem: "external",
		Name:      "calls_total",
		Help:      "Total number of external operation calls, by operation and outcome.",
	},
	[]string{"operation", "outcome"},
)

var NodesByState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "meshd",
		Subsystem: "nodes",
		Name:      "by_state",
		Help:      "Current number of registered nodes, by lifecycle state.",
	},
	[]string{"state"},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "meshd",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds, by method, route, and status.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

var NodesPurgedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "meshd",
		Subsystem: "nodes",
		Name:      "purged_total",
		Help:      "Total number of nodes fully purged (external resources released).",
	},
)

// All returns every meshd metric for registration against a prometheus.Registerer.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		NodesRegisteredTotal,
		TasksEnqueuedTotal,
		TaskHandlerDuration,
		ExternalCallsTotal,
		NodesByState,
		NodesPurgedTotal,
		HTTPRequestDuration,
	}
}

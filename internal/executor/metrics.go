// internal/executor/metrics.go
package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resetctl_resets_total",
		Help: "Reset executions by outcome (clean, partial).",
	}, []string{"outcome"})
	deletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resetctl_resource_deletes_total",
		Help: "Resources deleted across all resets.",
	})
	deleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resetctl_resource_delete_failures_total",
		Help: "Per-resource delete failures across all resets.",
	})
)

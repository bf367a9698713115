// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MandatesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_mandates_created_total",
			Help: "Total number of mandates created",
		},
		[]string{"mandate_type"},
	)

	MandatesResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_mandates_resolved_total",
			Help: "Total number of mandates reaching a terminal status",
		},
		[]string{"status"},
	)

	MandateOpFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_mandate_op_failures_total",
			Help: "Total number of failed mandate API operations",
		},
		[]string{"operation", "error_code"},
	)

	MandateOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "coach_mandate_op_duration_seconds",
			Help: "Duration of mandate API operations in seconds",
		},
		[]string{"operation"},
	)

	OptimisticSlugsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coach_optimistic_slugs_tracked",
			Help: "Number of product slugs currently held in the optimistic overlay",
		},
	)
)

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the factory module.
// Tracks lifecycle counts and the durations of the two dispatch paths.
type Metrics struct {
	InstancesCreated      prometheus.Counter
	InstancesRegistered   prometheus.Counter
	InstancesDeactivated  prometheus.Counter
	RegistrationsRejected prometheus.Counter
	ViewingKeysWritten    prometheus.Counter
	ActiveInstances       prometheus.Gauge
	ExecuteDuration       prometheus.Histogram
	QueryDuration         prometheus.Histogram
}

// New creates a new Metrics instance with all factory module metrics registered.
func New() *Metrics {
	return &Metrics{
		InstancesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hatchery_instances_created_total",
			Help: "Total number of instance creations dispatched",
		}),
		InstancesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hatchery_instances_registered_total",
			Help: "Total number of instances that completed registration",
		}),
		InstancesDeactivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hatchery_instances_deactivated_total",
			Help: "Total number of instances moved to inactive",
		}),
		RegistrationsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hatchery_registrations_rejected_total",
			Help: "Total number of registration attempts rejected",
		}),
		ViewingKeysWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hatchery_viewing_keys_written_total",
			Help: "Total number of viewing keys created or replaced",
		}),
		ActiveInstances: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hatchery_active_instances",
			Help: "Number of instances currently registered as active",
		}),
		ExecuteDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hatchery_execute_duration_seconds",
			Help:    "Duration of execute dispatches (creation and lifecycle path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "hatchery_query_duration_seconds",
			Help:    "Duration of query dispatches (list and key validation path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveExecute records the duration of an execute dispatch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveExecute(start time.Time) {
	m.ExecuteDuration.Observe(time.Since(start).Seconds())
}

// ObserveQuery records the duration of a query dispatch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveQuery(start time.Time) {
	m.QueryDuration.Observe(time.Since(start).Seconds())
}

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments a pool. Register one per process; pools share it.
type Metrics struct {
	PatientsCompleted prometheus.Counter
	PatientsFailed    *prometheus.CounterVec
	EventsEmitted     prometheus.Counter
	SimulationSeconds prometheus.Histogram
}

// NewMetrics registers the scheduler collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PatientsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cohortgen",
			Name:      "patients_completed_total",
			Help:      "Patients whose full lifetime simulated without error.",
		}),
		PatientsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cohortgen",
			Name:      "patients_failed_total",
			Help:      "Patient-scoped simulation failures by failure kind.",
		}, []string{"kind"}),
		EventsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cohortgen",
			Name:      "events_emitted_total",
			Help:      "Clinical events appended across all completed records.",
		}),
		SimulationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cohortgen",
			Name:      "patient_simulation_seconds",
			Help:      "Wall time to simulate one patient lifetime.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

package provisioning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records run statistics on a private registry so they can be
// dumped in textfile-collector format at the end of a run.
type Metrics struct {
	registry *prometheus.Registry

	phaseDuration   *prometheus.HistogramVec
	phaseTotal      *prometheus.CounterVec
	operationsTotal *prometheus.CounterVec
	resourcesTotal  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provisioning_phase_duration_seconds",
			Help:    "Duration of each provisioning phase.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"phase"}),
		phaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioning_phase_total",
			Help: "Provisioning phases by result.",
		}, []string{"phase", "result"}),
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioning_operations_total",
			Help: "Named provisioning steps by result.",
		}, []string{"phase", "result"}),
		resourcesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provisioning_resources_total",
			Help: "Idempotent resources by kind and action taken.",
		}, []string{"kind", "action"}),
	}
	m.registry.MustRegister(m.phaseDuration, m.phaseTotal, m.operationsTotal, m.resourcesTotal)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePhase records one phase execution.
func (m *Metrics) ObservePhase(phase string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	m.phaseTotal.WithLabelValues(phase, result(err)).Inc()
}

// ObserveOperation records one named step.
func (m *Metrics) ObserveOperation(phase string, err error) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(phase, result(err)).Inc()
}

// ObserveResource records the action Ensure took for a resource.
func (m *Metrics) ObserveResource(kind, action string) {
	if m == nil {
		return
	}
	m.resourcesTotal.WithLabelValues(kind, action).Inc()
}

// WriteToTextfile writes all metrics in node-exporter textfile format.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

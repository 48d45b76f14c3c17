package gate

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricCyclesTotal         = "gate_cycles_total"
	MetricDoorOpenDuration    = "gate_door_open_duration_seconds"
	MetricAlertPulsesTotal    = "gate_alert_pulses_total"
	MetricVerdictsDroppedTotal = "gate_verdicts_dropped_total"
)

// Cycle result label values.
const (
	ResultPresent  = "present"
	ResultProxy    = "proxy"
	ResultAlert    = "alert"
	ResultIgnored  = "ignored"
	ResultDegraded = "degraded"
)

// Metrics contains Prometheus metrics for gate cycles. All operations are
// thread-safe.
type Metrics struct {
	cycles   *prometheus.CounterVec
	doorOpen prometheus.Histogram
	alerts   prometheus.Counter
	dropped  prometheus.Counter
}

// NewMetrics creates the collectors without registering them; call Register
// to attach them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCyclesTotal,
				Help: "Total number of completed gate cycles by result",
			},
			[]string{"result"},
		),
		doorOpen: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricDoorOpenDuration,
				Help:    "Histogram of door open duration in seconds per admit cycle",
				Buckets: []float64{1, 2.5, 5, 7.5, 10, 15, 20, 30},
			},
		),
		alerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricAlertPulsesTotal,
				Help: "Total number of buzzer alert pulses",
			},
		),
		dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricVerdictsDroppedTotal,
				Help: "Total number of verdicts dropped while a cycle was in flight",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{m.cycles, m.doorOpen, m.alerts, m.dropped}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncCycle increments the cycle counter for a result.
func (m *Metrics) IncCycle(result string) {
	m.cycles.WithLabelValues(result).Inc()
}

// ObserveDoorOpen records how long the door was open for one admit cycle.
func (m *Metrics) ObserveDoorOpen(seconds float64) {
	m.doorOpen.Observe(seconds)
}

// IncAlert increments the alert pulse counter.
func (m *Metrics) IncAlert() {
	m.alerts.Inc()
}

// IncDropped increments the dropped-verdict counter.
func (m *Metrics) IncDropped() {
	m.dropped.Inc()
}

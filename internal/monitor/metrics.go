package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the security monitor. A nil *Metrics records nothing.
type Metrics struct {
	SecurityEventsTotal *prometheus.CounterVec
	EscalationsTotal    *prometheus.CounterVec
	SchedulerRunsTotal  *prometheus.CounterVec
	SchedulerRunSeconds prometheus.Histogram
	FallbackEntries     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SecurityEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chantierpro_security_events_total",
			Help: "Security events recorded, by type and severity",
		}, []string{"type", "severity"}),
		EscalationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chantierpro_security_escalations_total",
			Help: "Derived events synthesized from accumulated activity, by type",
		}, []string{"type"}),
		SchedulerRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chantierpro_security_scheduler_runs_total",
			Help: "Scheduler passes, by which periodic work ran",
		}, []string{"pass"}),
		SchedulerRunSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chantierpro_security_scheduler_run_duration_seconds",
			Help:    "Duration of scheduler passes",
			Buckets: prometheus.DefBuckets,
		}),
		FallbackEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chantierpro_scheduler_fallback_entries",
			Help: "Entries held by the in-process fallback store after the last sweep",
		}),
	}
}

func (m *Metrics) IncrementEvent(e Event) {
	if m == nil {
		return
	}
	m.SecurityEventsTotal.WithLabelValues(string(e.Type), e.Severity.String()).Inc()
}

func (m *Metrics) IncrementEscalation(t EventType) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) ObserveSchedulerRun(pass string, seconds float64) {
	if m == nil {
		return
	}
	m.SchedulerRunsTotal.WithLabelValues(pass).Inc()
	m.SchedulerRunSeconds.Observe(seconds)
}

func (m *Metrics) SetFallbackEntries(n int) {
	if m == nil {
		return
	}
	m.FallbackEntries.Set(float64(n))
}

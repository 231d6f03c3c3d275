package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

type Metrics struct {
	RateLimitDecisionsTotal *prometheus.CounterVec
	RateLimitWindowsStarted *prometheus.CounterVec
	RateLimitResetsTotal    prometheus.Counter
	RateLimitActiveCounters prometheus.Gauge
}

// New registers the collectors with reg, or with the default registerer
// when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RateLimitDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chantierpro_ratelimit_decisions_total",
			Help: "Total number of rate limit decisions by category and outcome",
		}, []string{"category", "outcome"}),
		RateLimitWindowsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chantierpro_ratelimit_windows_started_total",
			Help: "Total number of fixed windows opened by category",
		}, []string{"category"}),
		RateLimitResetsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chantierpro_ratelimit_resets_total",
			Help: "Total number of counters reset by administrators",
		}),
		RateLimitActiveCounters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chantierpro_ratelimit_active_counters",
			Help: "Number of active counters seen by the last stats query",
		}),
	}
}

func (m *Metrics) IncrementDecision(category string, allowed bool) {
	outcome := OutcomeDenied
	if allowed {
		outcome = OutcomeAllowed
	}
	m.RateLimitDecisionsTotal.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) IncrementWindowsStarted(category string) {
	m.RateLimitWindowsStarted.WithLabelValues(category).Inc()
}

func (m *Metrics) IncrementResets() {
	m.RateLimitResetsTotal.Inc()
}

func (m *Metrics) SetActiveCounters(count int) {
	m.RateLimitActiveCounters.Set(float64(count))
}

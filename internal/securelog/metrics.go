package securelog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	FlushOutcomeDelivered = "delivered"
	FlushOutcomeFailed    = "failed"
)

// Metrics for the secure logger. A nil *Metrics records nothing.
type Metrics struct {
	Entries         *prometheus.CounterVec
	BufferedEntries prometheus.Gauge
	Flushes         *prometheus.CounterVec
}

// NewMetrics registers on reg, or on the default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Entries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chantierpro_securelog_entries_total",
			Help: "Secure log entries recorded, by level",
		}, []string{"level"}),
		BufferedEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chantierpro_securelog_buffered_entries",
			Help: "Entries waiting for the next flush",
		}),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chantierpro_securelog_flushes_total",
			Help: "Buffer flushes to the sink, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementEntries(level Level) {
	if m == nil {
		return
	}
	m.Entries.WithLabelValues(string(level)).Inc()
}

func (m *Metrics) SetBuffered(n int) {
	if m == nil {
		return
	}
	m.BufferedEntries.Set(float64(n))
}

func (m *Metrics) IncrementFlush(outcome string) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(outcome).Inc()
}

package kvstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts backend failures and calls served by the fallback.
type Metrics struct {
	BackendErrors  *prometheus.CounterVec
	FallbackOps    *prometheus.CounterVec
	FallbackActive prometheus.Gauge
}

// NewMetrics registers the store collectors with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		BackendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chantierpro_kvstore_backend_errors_total",
			Help: "Total number of distributed backend errors by operation",
		}, []string{"op"}),
		FallbackOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chantierpro_kvstore_fallback_operations_total",
			Help: "Total number of operations served by the in-process fallback",
		}, []string{"op"}),
		FallbackActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chantierpro_kvstore_fallback_active",
			Help: "1 when the store is serving from the in-process fallback",
		}),
	}
}

func (m *Metrics) recordBackendError(op string) {
	if m == nil {
		return
	}
	m.BackendErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) recordFallback(op string) {
	if m == nil {
		return
	}
	m.FallbackOps.WithLabelValues(op).Inc()
}

func (m *Metrics) setFallbackActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.FallbackActive.Set(1)
		return
	}
	m.FallbackActive.Set(0)
}

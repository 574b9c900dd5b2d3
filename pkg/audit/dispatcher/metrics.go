package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons reported on the dropped counter.
const (
	reasonBufferFull  = "buffer_full"
	reasonCircuitOpen = "circuit_open"
)

// Metrics holds Prometheus metrics for event delivery.
type Metrics struct {
	Emitted         prometheus.Counter
	Dropped         *prometheus.CounterVec
	Persisted       *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	PersistDuration *prometheus.HistogramVec
	CircuitOpen     *prometheus.GaugeVec
}

// NewMetrics registers delivery metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Emitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "auditlog_dispatcher_emitted_total",
			Help: "Total number of payloads accepted by the dispatcher",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditlog_dispatcher_dropped_total",
			Help: "Total number of payloads dropped before reaching a sink",
		}, []string{"sink", "reason"}),
		Persisted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditlog_dispatcher_persisted_total",
			Help: "Total number of payloads a sink persisted successfully",
		}, []string{"sink"}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auditlog_dispatcher_persist_failures_total",
			Help: "Total number of failed persist calls",
		}, []string{"sink"}),
		PersistDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auditlog_dispatcher_persist_duration_seconds",
			Help:    "Latency of sink persist calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
		CircuitOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "auditlog_dispatcher_circuit_open",
			Help: "Circuit breaker state per sink (0=closed, 1=open)",
		}, []string{"sink"}),
	}
}

func (m *Metrics) incEmitted() {
	if m != nil {
		m.Emitted.Inc()
	}
}

func (m *Metrics) incDropped(sinkName, reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(sinkName, reason).Inc()
	}
}

func (m *Metrics) observePersist(sinkName string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.PersistDuration.WithLabelValues(sinkName).Observe(seconds)
	if err != nil {
		m.PersistFailures.WithLabelValues(sinkName).Inc()
		return
	}
	m.Persisted.WithLabelValues(sinkName).Inc()
}

func (m *Metrics) setCircuitOpen(sinkName string, open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.WithLabelValues(sinkName).Set(1)
	} else {
		m.CircuitOpen.WithLabelValues(sinkName).Set(0)
	}
}

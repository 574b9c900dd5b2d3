package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process level Prometheus metrics.
type Metrics struct {
	Registry *prometheus.Registry
	SinksUp  *prometheus.GaugeVec
}

// New creates a registry with the Go and process collectors and registers
// the process metrics on it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		SinksUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "auditlog_sink_up",
			Help: "Whether a configured sink connected at startup (1) or not (0)",
		}, []string{"sink"}),
	}
}

// SetSinkUp records the outcome of a sink's Configure call.
func (m *Metrics) SetSinkUp(name string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.SinksUp.WithLabelValues(name).Set(v)
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

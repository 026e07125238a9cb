package tacs

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the broker's Prometheus gauges, served on /metrics by the
// TACS bootstrap router.
type Metrics struct {
	agentsRegistered prometheus.Gauge
	probesRegistered prometheus.Gauge
	probesLocked     prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		agentsRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tacs_agents_registered",
			Help: "Number of agents currently registered with the broker.",
		}),
		probesRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tacs_probes_registered",
			Help: "Number of probes currently registered with the broker.",
		}),
		probesLocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tacs_probes_locked",
			Help: "Number of probes currently locked by a client.",
		}),
	}
}

// Register adds every gauge to reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.agentsRegistered, m.probesRegistered, m.probesLocked)
}

// Refresh recomputes probesLocked from the live registry; agents/probes
// counts are maintained incrementally by the broker's register/
// unregister handlers.
func (m *Metrics) Refresh(r *Registry) {
	locked := 0
	for _, p := range r.Probes() {
		if len(p.Locks) > 0 {
			locked++
		}
	}
	m.probesLocked.Set(float64(locked))
}

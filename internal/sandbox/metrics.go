package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sandbox collectors. Each server registers them on its own
// registry so tests can run several servers side by side.
type Metrics struct {
	registry *prometheus.Registry

	// uploadsTotal counts POST uploads by result ("success", "rejected", "error").
	uploadsTotal *prometheus.CounterVec

	// uploadBytesTotal counts stored bytes.
	uploadBytesTotal prometheus.Counter

	// tokensIssuedTotal counts issued credentials.
	tokensIssuedTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ossupload",
				Subsystem: "sandbox",
				Name:      "uploads_total",
				Help:      "Total number of form uploads by result",
			},
			[]string{"result"},
		),
		uploadBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ossupload",
				Subsystem: "sandbox",
				Name:      "upload_bytes_total",
				Help:      "Total number of bytes stored by successful uploads",
			},
		),
		tokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ossupload",
				Subsystem: "sandbox",
				Name:      "tokens_issued_total",
				Help:      "Total number of upload credentials issued",
			},
		),
	}
	m.registry.MustRegister(m.uploadsTotal, m.uploadBytesTotal, m.tokensIssuedTotal)
	return m
}

// Registry exposes the registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

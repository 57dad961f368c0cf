package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the trail's failure counters.
type Metrics struct {
	appendFailures *prometheus.CounterVec
	dropped        prometheus.Counter
}

// NewMetrics registers the audit counters on reg. A nil reg yields unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		appendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_audit_append_failures_total",
			Help: "Audit entries a sink failed to write.",
		}, []string{"sink"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_audit_dropped_total",
			Help: "Audit entries dropped before reaching any sink.",
		}),
	}
}

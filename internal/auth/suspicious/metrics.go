package suspicious

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts raised flags.
type Metrics struct {
	flags *prometheus.CounterVec
}

// NewMetrics registers the detector counters on reg. A nil reg yields unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		flags: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "warden_suspicious_login_flags_total",
			Help: "Suspicious-login flags raised, by flag.",
		}, []string{"flag"}),
	}
}

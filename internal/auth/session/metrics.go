package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the lifecycle outcome counters.
type Metrics struct {
	logins  *prometheus.CounterVec
	refresh *prometheus.CounterVec
	logout  prometheus.Counter
	swept   prometheus.Counter
}

// NewMetrics registers the session counters on reg. A nil reg yields unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_auth_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		refresh: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_auth_refresh_total",
			Help: "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		logout: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_auth_logout_total",
			Help: "Logouts processed.",
		}),
		swept: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_session_swept_total",
			Help: "Expired sessions removed by the sweeper.",
		}),
	}
}

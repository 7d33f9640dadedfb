package eventauth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts authentication outcomes. The internal error kind is recorded so
// operators can tell storage or provider trouble apart from bad passwords, even though
// end users only ever see the collapsed message. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Attempts  *prometheus.CounterVec
	Sessions  *prometheus.CounterVec
	GuardRuns *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg (nil means don't register)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventauth",
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventauth",
			Name:      "session_operations_total",
			Help:      "Session issue/invalidate operations by outcome.",
		}, []string{"operation", "outcome"}),
		GuardRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventauth",
			Name:      "guard_decisions_total",
			Help:      "Access guard decisions by final state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.Attempts, m.Sessions, m.GuardRuns)
	}
	return m
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

func (m *Metrics) observeAttempt(method string, err error) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(method, outcome(err)).Inc()
}

func (m *Metrics) observeSession(op string, err error) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) observeGuard(state GuardState) {
	if m == nil {
		return
	}
	m.GuardRuns.WithLabelValues(state.String()).Inc()
}

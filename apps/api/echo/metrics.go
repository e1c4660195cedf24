package echoapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/college/core/access"
)

const loginSuccess = "success"

type metrics struct {
	guardDecisions *prometheus.CounterVec
	loginOutcomes  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		guardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "college",
			Name:      "guard_decisions_total",
			Help:      "Access guard decisions by action.",
		}, []string{"action"}),
		loginOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "college",
			Name:      "login_outcomes_total",
			Help:      "Login submissions by outcome: success or the rejection kind.",
		}, []string{"outcome"}),
	}
}

func (m *metrics) guardDecision(d access.Decision) {
	m.guardDecisions.WithLabelValues(d.Action.String()).Inc()
}

func (m *metrics) loginOutcome(rej *access.Error) {
	outcome := loginSuccess
	if rej != nil {
		outcome = rej.Kind.String()
	}
	m.loginOutcomes.WithLabelValues(outcome).Inc()
}

package guard

import (
	"github.com/prometheus/client_golang/prometheus"
)

var decisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "guard_decisions_total",
		Help: "Route guard decisions by outcome",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(decisionsTotal)
}

func recordDecision(outcome string) { decisionsTotal.WithLabelValues(outcome).Inc() }

package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome (success, failed, error)",
		},
		[]string{"outcome"},
	)

	refreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refreshes_total",
			Help: "Token refresh attempts by outcome (success, rejected, unavailable, error)",
		},
		[]string{"outcome"},
	)

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_verifications_total",
			Help: "Email verification checks by outcome (success, invalid, expired, exhausted)",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(loginsTotal, refreshesTotal, verificationsTotal)
}

func recordLogin(outcome string)        { loginsTotal.WithLabelValues(outcome).Inc() }
func recordRefresh(outcome string)      { refreshesTotal.WithLabelValues(outcome).Inc() }
func recordVerification(outcome string) { verificationsTotal.WithLabelValues(outcome).Inc() }

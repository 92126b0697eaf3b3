package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_security_rate_limit_decisions_total",
			Help: "Sliding-window admission decisions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_security_login_attempts_total",
			Help: "Recorded login attempts by outcome",
		},
		[]string{"outcome"},
	)

	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "account_security_lockouts_total",
			Help: "Accounts locked after repeated failed attempts",
		},
	)

	SessionsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "account_security_sessions_issued_total",
			Help: "Sessions created after successful authentication",
		},
	)

	SessionsInvalidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_security_sessions_invalidated_total",
			Help: "Sessions invalidated by reason",
		},
		[]string{"reason"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "account_security_sweep_duration_seconds",
			Help: "Duration of expired-session sweeps",
		},
	)

	SecurityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_security_events_recorded_total",
			Help: "Security events recorded by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	ThreatRiskScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "account_security_threat_risk_score",
			Help:    "Risk scores produced by threat assessments",
			Buckets: []float64{0, 10, 25, 35, 50, 75, 100},
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records sign-in/sign-up attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// TeamAccessChecks counts active-team resolutions and their outcome
	// (allowed|denied|bypass). Bypass marks the global admin escape hatch.
	TeamAccessChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_team_access_checks_total",
			Help: "Total number of team-scoped authorization checks",
		},
		[]string{"result"},
	)

	// InvitationTransitions counts invitation state-machine transitions by
	// kind (create|accept|approve|delete) and result (success|rejected).
	InvitationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_invitation_transitions_total",
			Help: "Total number of invitation lifecycle transitions",
		},
		[]string{"kind", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backoffice_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

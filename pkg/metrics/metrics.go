package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts counts sign-in attempts labelled success or failure.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "personainsights_auth_attempts_total",
			Help: "Sign-in attempts by result",
		},
		[]string{"result"},
	)

	// InvitationsCreated counts invitations created by type.
	InvitationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "personainsights_invitations_created_total",
			Help: "Total number of invitations created",
		},
		[]string{"type"},
	)

	// InvitationsResolved counts invitation resolutions by type and outcome
	// (accepted|declined|expired|rejected).
	InvitationsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "personainsights_invitations_resolved_total",
			Help: "Total number of invitation resolutions",
		},
		[]string{"type", "outcome"},
	)

	// TeamMembers tracks current team membership counts.
	TeamMembers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "personainsights_team_members",
			Help: "Number of active team membership rows",
		},
	)

	// APILatency observes request duration per route and status.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "personainsights_api_latency_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_poll_runs_total",
			Help: "Total number of status poll attempts",
		},
		[]string{"poller"},
	)

	pollFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_poll_failures_total",
			Help: "Total number of failed status polls",
		},
		[]string{"poller"},
	)

	vipTransitionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_vip_transitions_total",
			Help: "Total number of VIP entitlement transitions announced",
		},
	)
)

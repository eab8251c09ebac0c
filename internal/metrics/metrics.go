// Package metrics provides Prometheus instrumentation for the Chatogram
// matching engine: gauges for queue and session counts, counters for
// matches, relayed messages and safety events, and a histogram for match
// wait time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WaitingUsers tracks the current number of users in the waiting queue.
	WaitingUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatogram_waiting_users",
		Help: "Current number of users in the waiting queue",
	})

	// ActiveSessions tracks the current number of active chat sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatogram_active_sessions",
		Help: "Current number of active chat sessions",
	})

	// MatchesTotal counts established sessions, labeled by how they came to
	// be: "search" or "reconnect".
	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatogram_matches_total",
		Help: "Total number of sessions established",
	}, []string{"origin"})

	// MatchWaitSeconds records the time a user spent waiting before a match.
	MatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatogram_match_wait_seconds",
		Help:    "Time from search request to match",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
	})

	// MessagesRelayed counts messages forwarded between paired users,
	// labeled "delivered", "failed" or "blocked".
	MessagesRelayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatogram_messages_relayed_total",
		Help: "Total number of relayed messages",
	}, []string{"outcome"})

	// ReportsTotal counts abuse reports accepted by the engine.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatogram_reports_total",
		Help: "Total number of abuse reports submitted",
	})

	// BansTotal counts users banned by the report threshold.
	BansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatogram_bans_total",
		Help: "Total number of users banned",
	})
)

func init() {
	prometheus.MustRegister(
		WaitingUsers,
		ActiveSessions,
		MatchesTotal,
		MatchWaitSeconds,
		MessagesRelayed,
		ReportsTotal,
		BansTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

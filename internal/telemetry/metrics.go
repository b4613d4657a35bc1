package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qms_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qms_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qms_tokens_issued_total",
			Help: "Tokens issued per service code",
		},
		[]string{"service"},
	)

	TokenTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qms_token_transitions_total",
			Help: "Committed token status changes by target status",
		},
		[]string{"status"},
	)

	CommandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qms_command_errors_total",
			Help: "Rejected engine commands by command name",
		},
		[]string{"command"},
	)

	WaitingTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qms_waiting_tokens",
			Help: "Tokens currently WAITING",
		},
	)

	SubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qms_subscribers_active",
			Help: "Viewers subscribed to state changes",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qms_events_dropped_total",
			Help: "Superseded state events discarded for slow subscribers",
		},
	)
)

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Number of open connection sessions",
		},
	)

	SessionsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sessions_opened_total",
			Help: "Total number of accepted connections by transport",
		},
		[]string{"transport"}, // tcp, websocket
	)

	// Protocol metrics
	FramesDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_frames_decoded_total",
			Help: "Total number of decoded frames by message type",
		},
		[]string{"type"},
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_protocol_errors_total",
			Help: "Total number of fatal framing errors by reason",
		},
		[]string{"reason"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_request_duration_seconds",
			Help:    "Time spent routing a request",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"type"},
	)

	RequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_request_errors_total",
			Help: "Total number of error responses by kind",
		},
		[]string{"kind"},
	)

	// Delivery metrics
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Total number of frames handed to session queues by result",
		},
		[]string{"result"}, // delivered, dropped, closed
	)

	// Presence metrics
	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_online_users",
			Help: "Number of users with at least one live session",
		},
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_presence_transitions_total",
			Help: "Total number of online/offline transitions",
		},
		[]string{"state"}, // online, offline
	)

	SweeperEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sweeper_evictions_total",
			Help: "Total number of sessions closed for missing heartbeats",
		},
	)

	// Persistence metrics
	Persisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Total number of persistence attempts by result",
		},
		[]string{"result"}, // ok, error, dropped, rejected
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Cluster metrics
	RelayMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_messages_total",
			Help: "Total number of cross-node relay envelopes",
		},
		[]string{"direction"}, // published, received, failed
	)
)

// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WSConnectionsActive tracks authenticated WebSocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of authenticated WebSocket connections",
		},
	)

	// MessagesSentTotal tracks messages persisted by the send saga.
	MessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total messages persisted",
		},
	)

	// FanoutPublishedTotal tracks envelopes published on the fan-out channel.
	FanoutPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_published_total",
			Help: "Envelopes published on the fan-out channel",
		},
		[]string{"channel"},
	)

	// FanoutDeliveredTotal tracks envelopes pushed to local sockets.
	FanoutDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fanout_delivered_total",
			Help: "Envelopes pushed to local client sockets",
		},
	)

	// BreakerFallbackTotal tracks protected calls absorbed by a fallback.
	BreakerFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_fallback_total",
			Help: "Protected calls that degraded to the fallback",
		},
		[]string{"name"},
	)

	// BreakerState exposes the current breaker state per named operation
	// (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// StatusUpdatesTotal tracks delivered/read receipt transitions.
	StatusUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_updates_total",
			Help: "Delivery-status transitions persisted",
		},
		[]string{"status"},
	)
)

// IncrementConnections increments the active connection count.
func IncrementConnections() {
	WSConnectionsActive.Inc()
}

// DecrementConnections decrements the active connection count.
func DecrementConnections() {
	WSConnectionsActive.Dec()
}

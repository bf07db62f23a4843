// Package observability exposes the Prometheus metric vectors recorded by
// the messaging subsystem.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveWebSockets is the gauge of currently open websocket connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vetcare_websocket_connections_active",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts relayed websocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetcare_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetcare_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})

	// MessagesSentTotal counts persisted messages.
	MessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vetcare_messages_sent_total",
		Help: "Total number of messages persisted",
	})

	// NotificationDeliveries counts external delivery attempts by channel and outcome.
	NotificationDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetcare_notification_deliveries_total",
		Help: "External notification delivery attempts by channel and outcome",
	}, []string{"channel", "outcome"})

	// RedisErrors counts Redis command failures by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetcare_redis_errors_total",
		Help: "Total Redis command errors by command",
	}, []string{"command"})
)

package websocket

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "retailsales.websocket"

// hubMetrics holds the OpenTelemetry instruments of a hub
type hubMetrics struct {
	connectionsTotal  metric.Int64Counter
	connectionsActive metric.Int64UpDownCounter
	messagesTotal     metric.Int64Counter
	messageBytes      metric.Int64Counter
	droppedMessages   metric.Int64Counter
}

func newHubMetrics(meter metric.Meter) (*hubMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	connectionsTotal, err := meter.Int64Counter(
		"websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	connectionsActive, err := meter.Int64UpDownCounter(
		"websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	messagesTotal, err := meter.Int64Counter(
		"websocket_messages_total",
		metric.WithDescription("Status messages delivered to WebSocket clients"),
	)
	if err != nil {
		return nil, err
	}

	messageBytes, err := meter.Int64Counter(
		"websocket_message_bytes_total",
		metric.WithDescription("Total bytes of WebSocket messages"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	droppedMessages, err := meter.Int64Counter(
		"websocket_dropped_messages_total",
		metric.WithDescription("Messages dropped because a queue was full"),
	)
	if err != nil {
		return nil, err
	}

	return &hubMetrics{
		connectionsTotal:  connectionsTotal,
		connectionsActive: connectionsActive,
		messagesTotal:     messagesTotal,
		messageBytes:      messageBytes,
		droppedMessages:   droppedMessages,
	}, nil
}

func (m *hubMetrics) recordConnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionsTotal.Add(ctx, 1)
	m.connectionsActive.Add(ctx, 1)
}

func (m *hubMetrics) recordDisconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.connectionsActive.Add(ctx, -1)
}

func (m *hubMetrics) recordSent(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.messagesTotal.Add(ctx, 1)
	m.messageBytes.Add(ctx, int64(size))
}

func (m *hubMetrics) recordDropped(ctx context.Context, where string) {
	if m == nil {
		return
	}
	m.droppedMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", where)))
}

package websocket

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "divrec.websocket"

// Metrics tracks hub activity. Counters are kept locally for the periodic
// snapshot log and mirrored to OpenTelemetry instruments so they show up on
// the configured exporter alongside the analysis metrics.
type Metrics struct {
	mu sync.Mutex

	totalConnections  int64
	activeConnections int64
	peakConnections   int64
	messagesSent      int64
	messagesReceived  int64
	bytesSent         int64
	bytesReceived     int64
	droppedMessages   int64
	broadcasts        int64
	lastReset         time.Time

	connectionsTotal   metric.Int64Counter
	connectionsActive  metric.Int64UpDownCounter
	connectionDuration metric.Float64Histogram
	messagesTotal      metric.Int64Counter
	messageBytes       metric.Int64Counter
	messagesDropped    metric.Int64Counter
	broadcastsTotal    metric.Int64Counter
}

// NewMetrics creates a metrics recorder backed by the global meter provider.
// Instrument creation failures are reported to the OTel error handler and the
// corresponding instrument stays nil; local counters still work.
func NewMetrics() *Metrics {
	m := &Metrics{lastReset: time.Now()}
	meter := otel.Meter(meterName)

	var err error
	if m.connectionsTotal, err = meter.Int64Counter(
		"websocket_connections_total",
		metric.WithDescription("Total number of websocket connections accepted"),
	); err != nil {
		otel.Handle(err)
	}
	if m.connectionsActive, err = meter.Int64UpDownCounter(
		"websocket_connections_active",
		metric.WithDescription("Number of currently connected websocket clients"),
	); err != nil {
		otel.Handle(err)
	}
	if m.connectionDuration, err = meter.Float64Histogram(
		"websocket_connection_duration_seconds",
		metric.WithDescription("Lifetime of closed websocket connections"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
	}
	if m.messagesTotal, err = meter.Int64Counter(
		"websocket_messages_total",
		metric.WithDescription("Total number of websocket messages by direction"),
	); err != nil {
		otel.Handle(err)
	}
	if m.messageBytes, err = meter.Int64Counter(
		"websocket_message_bytes_total",
		metric.WithDescription("Total websocket payload bytes by direction"),
	); err != nil {
		otel.Handle(err)
	}
	if m.messagesDropped, err = meter.Int64Counter(
		"websocket_messages_dropped_total",
		metric.WithDescription("Messages dropped because a send buffer was full"),
	); err != nil {
		otel.Handle(err)
	}
	if m.broadcastsTotal, err = meter.Int64Counter(
		"websocket_broadcasts_total",
		metric.WithDescription("Total number of hub broadcast operations"),
	); err != nil {
		otel.Handle(err)
	}
	return m
}

// RecordConnection records a newly registered client.
func (m *Metrics) RecordConnection(ctx context.Context) {
	m.mu.Lock()
	m.totalConnections++
	m.activeConnections++
	if m.activeConnections > m.peakConnections {
		m.peakConnections = m.activeConnections
	}
	m.mu.Unlock()

	if m.connectionsTotal != nil {
		m.connectionsTotal.Add(ctx, 1)
	}
	if m.connectionsActive != nil {
		m.connectionsActive.Add(ctx, 1)
	}
}

// RecordDisconnection records a departed client and its connection lifetime.
func (m *Metrics) RecordDisconnection(ctx context.Context, duration time.Duration) {
	m.mu.Lock()
	m.activeConnections--
	m.mu.Unlock()

	if m.connectionsActive != nil {
		m.connectionsActive.Add(ctx, -1)
	}
	if m.connectionDuration != nil {
		m.connectionDuration.Record(ctx, duration.Seconds())
	}
}

// RecordMessageSent records one outbound frame.
func (m *Metrics) RecordMessageSent(ctx context.Context, size int64) {
	m.mu.Lock()
	m.messagesSent++
	m.bytesSent += size
	m.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("direction", "outbound"))
	if m.messagesTotal != nil {
		m.messagesTotal.Add(ctx, 1, attrs)
	}
	if m.messageBytes != nil {
		m.messageBytes.Add(ctx, size, attrs)
	}
}

// RecordMessageReceived records one inbound frame.
func (m *Metrics) RecordMessageReceived(ctx context.Context, size int64) {
	m.mu.Lock()
	m.messagesReceived++
	m.bytesReceived += size
	m.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("direction", "inbound"))
	if m.messagesTotal != nil {
		m.messagesTotal.Add(ctx, 1, attrs)
	}
	if m.messageBytes != nil {
		m.messageBytes.Add(ctx, size, attrs)
	}
}

// RecordDroppedMessage records a frame discarded because a buffer was full.
func (m *Metrics) RecordDroppedMessage(ctx context.Context, messageType string) {
	m.mu.Lock()
	m.droppedMessages++
	m.mu.Unlock()

	if m.messagesDropped != nil {
		m.messagesDropped.Add(ctx, 1, metric.WithAttributes(
			attribute.String("message_type", messageType),
		))
	}
}

// RecordBroadcast records one hub broadcast operation.
func (m *Metrics) RecordBroadcast(ctx context.Context, messageType string) {
	m.mu.Lock()
	m.broadcasts++
	m.mu.Unlock()

	if m.broadcastsTotal != nil {
		m.broadcastsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("message_type", messageType),
		))
	}
}

// Snapshot returns the local counters for logging and diagnostics.
func (m *Metrics) Snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"connections_total":  m.totalConnections,
		"connections_active": m.activeConnections,
		"connections_peak":   m.peakConnections,
		"messages_sent":      m.messagesSent,
		"messages_received":  m.messagesReceived,
		"bytes_sent":         m.bytesSent,
		"bytes_received":     m.bytesReceived,
		"messages_dropped":   m.droppedMessages,
		"broadcasts":         m.broadcasts,
		"uptime_seconds":     time.Since(m.lastReset).Seconds(),
	}
}

// Reset zeroes the local counters. OTel instruments are cumulative and are
// left alone.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalConnections = 0
	m.activeConnections = 0
	m.peakConnections = 0
	m.messagesSent = 0
	m.messagesReceived = 0
	m.bytesSent = 0
	m.bytesReceived = 0
	m.droppedMessages = 0
	m.broadcasts = 0
	m.lastReset = time.Now()
}

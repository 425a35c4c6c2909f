package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"divrec/internal/infrastructure"
	"divrec/pkg/contracts/events"
)

const (
	// writeWait is the deadline for a single outbound frame.
	writeWait = 10 * time.Second

	// defaultPongWait is used when Options leaves the timings unset.
	defaultPongWait = 60 * time.Second

	// maxMessageSize caps inbound frames; clients only send heartbeats.
	maxMessageSize = 512

	// sendBuffer is the per-client outbound queue depth.
	sendBuffer = 256
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Options carries the client timing knobs, usually sourced from
// config.WebSocketConfig. Zero values fall back to defaults, and the ping
// period is clamped below the pong wait so pings always land in time.
type Options struct {
	PingPeriod time.Duration
	PongWait   time.Duration
}

func (o Options) withDefaults() Options {
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	return o
}

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn Connection
	send chan []byte

	id          string
	remoteAddr  string
	connectedAt time.Time
	opts        Options

	logger *slog.Logger

	messagesSent     int64
	messagesReceived int64
}

// NewClient creates a client around an established connection. The caller
// still has to register it with the hub and start the pumps; ServeWS does
// all three.
func NewClient(hub *Hub, conn Connection, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	id := uuid.New().String()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          id,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		opts:        opts.withDefaults(),
		logger: logger.With(
			slog.String("component", "websocket.client"),
			slog.String("client_id", id),
		),
	}
}

// ReadPump drains inbound frames until the connection drops, then unregisters
// the client. Heartbeat frames refresh nothing beyond the read deadline the
// pong handler already maintains; other client frames carry no commands today.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.logger.Info("websocket read pump stopped",
			slog.Duration("connected_for", time.Since(c.connectedAt)),
			slog.Int64("messages_received", c.messagesReceived))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("unexpected websocket close",
					slog.String("error", err.Error()))
			}
			return
		}
		message = bytes.TrimSpace(bytes.ReplaceAll(message, newline, space))

		c.messagesReceived++
		c.hub.metrics.RecordMessageReceived(context.Background(), int64(len(message)))

		var frame events.Message
		if err := json.Unmarshal(message, &frame); err == nil && frame.Type == events.MessageTypeHeartbeat {
			c.logger.Debug("heartbeat received")
		}
	}
}

// WritePump forwards queued frames to the connection and keeps it alive with
// periodic pings. It exits when the hub closes the send buffer or a write
// fails; closing the connection makes ReadPump unblock and unregister.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Info("websocket write pump stopped",
			slog.Int64("messages_sent", c.messagesSent))
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Error("websocket write failed",
					slog.String("error", err.Error()))
				return
			}
			c.messagesSent++
			c.hub.metrics.RecordMessageSent(context.Background(), int64(len(payload)))
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping failed",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

// ServeWS registers an already-upgraded connection with the hub and starts
// the client's read and write pumps.
func ServeWS(hub *Hub, conn *websocket.Conn, opts Options, logger *slog.Logger) {
	client := NewClient(hub, NewConnection(conn), opts, logger)
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// Package websocket fans analysis progress out to browser clients. Services
// publish events through Hub.Broadcast; the hub owns client registration,
// per-client send buffers and slow-consumer eviction.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"divrec/internal/infrastructure"
	"divrec/pkg/contracts/events"
)

const (
	// broadcastBuffer bounds the hub's fan-in queue. Broadcasts beyond it
	// are dropped rather than blocking the analysis pipeline.
	broadcastBuffer = 256

	// metricsInterval is how often the running hub logs a counter snapshot.
	metricsInterval = 30 * time.Second
)

// Hub maintains the set of connected clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	logger  *slog.Logger
	metrics *Metrics

	mu          sync.RWMutex
	running     bool
	quit        chan struct{}
	metricsQuit chan struct{}
}

// NewHub creates a hub. Call Start before registering clients.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		broadcast:   make(chan []byte, broadcastBuffer),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger.With(slog.String("component", "websocket.hub")),
		metrics:     NewMetrics(),
		quit:        make(chan struct{}),
		metricsQuit: make(chan struct{}),
	}
}

// Start launches the hub's event loop and metrics reporter. Calling Start on
// a running hub is a no-op.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
	go h.reportMetrics()
	h.logger.Info("websocket hub started")
}

// Stop shuts the hub down and disconnects every client. A stopped hub cannot
// be restarted.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	close(h.metricsQuit)
	h.logger.Info("websocket hub stopped")
}

// Register adds a client to the hub. Registration against a stopped hub is a
// no-op so connections racing Stop cannot block forever.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client and closes its send buffer.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Broadcast queues an event for delivery to every connected client. It never
// blocks: when the queue is full the message is counted as dropped and
// discarded, so analysis progress is never gated on websocket consumers.
// This is the services.WebSocketHub contract.
func (h *Hub) Broadcast(messageType string, data interface{}) {
	payload, err := encodeMessage(events.MessageType(messageType), data)
	if err != nil {
		h.logger.Error("failed to encode broadcast",
			slog.String("message_type", messageType),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- payload:
		h.metrics.RecordBroadcast(context.Background(), messageType)
	default:
		h.metrics.RecordDroppedMessage(context.Background(), messageType)
		h.logger.Warn("broadcast queue full, dropping message",
			slog.String("message_type", messageType))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case payload := <-h.broadcast:
			h.fanOut(payload)
		case <-h.quit:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.RecordConnection(context.Background())
	h.logger.Info("websocket client connected",
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr),
		slog.Int("clients", total))

	welcome, err := encodeMessage(events.MessageTypeConnected, events.ConnectionInfo{
		ClientID:   client.id,
		Status:     "connected",
		ServerTime: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to encode welcome message",
			slog.String("error", err.Error()))
		return
	}
	select {
	case client.send <- welcome:
	default:
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client]
	if known {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !known {
		return
	}
	h.metrics.RecordDisconnection(context.Background(), time.Since(client.connectedAt))
	h.logger.Info("websocket client disconnected",
		slog.String("client_id", client.id),
		slog.Duration("connected_for", time.Since(client.connectedAt)),
		slog.Int("clients", total))
}

func (h *Hub) fanOut(payload []byte) {
	ctx := context.Background()

	h.mu.Lock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// The client stopped draining its buffer; cut it loose so
			// one slow consumer cannot stall everyone else.
			delete(h.clients, client)
			close(client.send)
			h.metrics.RecordDroppedMessage(ctx, "broadcast")
			h.metrics.RecordDisconnection(ctx, time.Since(client.connectedAt))
			h.logger.Warn("evicting slow websocket client",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))
		}
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

func (h *Hub) reportMetrics() {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.logger.Debug("websocket hub metrics",
				slog.Int("clients", h.ClientCount()),
				slog.Any("counters", h.metrics.Snapshot()))
		case <-h.metricsQuit:
			return
		}
	}
}

func encodeMessage(messageType events.MessageType, data interface{}) ([]byte, error) {
	return json.Marshal(events.Message{
		ID:        uuid.New().String(),
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

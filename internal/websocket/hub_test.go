package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"divrec/pkg/contracts/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a client wired to the hub without a real connection.
func newTestClient(hub *Hub, buffer int) *Client {
	return &Client{
		id:          uuid.New().String(),
		hub:         hub,
		send:        make(chan []byte, buffer),
		connectedAt: time.Now(),
		remoteAddr:  "127.0.0.1:52000",
		logger:      testLogger(),
	}
}

// recvFrame reads one frame from a client send buffer and decodes the
// envelope.
func recvFrame(t *testing.T, ch <-chan []byte) events.Message {
	t.Helper()
	select {
	case payload := <-ch:
		var msg events.Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
	return events.Message{}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(testLogger())

	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.NotNil(t, hub.metrics)
	assert.NotNil(t, hub.quit)
	assert.NotNil(t, hub.metricsQuit)
	assert.False(t, hub.running)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubStartStop(t *testing.T) {
	hub := NewHub(testLogger())

	hub.Start()
	assert.True(t, hub.running)

	// Idempotent.
	hub.Start()
	assert.True(t, hub.running)

	hub.Stop()
	assert.False(t, hub.running)

	hub.Stop()
	assert.False(t, hub.running)
}

func TestHubClientRegistration(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, 16)
	hub.Register(client)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	welcome := recvFrame(t, client.send)
	assert.Equal(t, events.MessageTypeConnected, welcome.Type)
	assert.NotEmpty(t, welcome.ID)
	assert.False(t, welcome.Timestamp.IsZero())

	info, ok := welcome.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, client.id, info["client_id"])
	assert.Equal(t, "connected", info["status"])

	hub.Unregister(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)

	// Unregistering twice must not panic or double-close.
	hub.Unregister(client)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newTestClient(hub, 16)
		hub.Register(clients[i])
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 3 },
		time.Second, 10*time.Millisecond)
	for _, c := range clients {
		recvFrame(t, c.send) // drain welcome
	}

	hub.Broadcast("job_progress", map[string]interface{}{
		"id":     "job-1",
		"status": "running",
	})

	for _, c := range clients {
		msg := recvFrame(t, c.send)
		assert.Equal(t, events.MessageTypeJobProgress, msg.Type)

		data, ok := msg.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "job-1", data["id"])
		assert.Equal(t, "running", data["status"])
	}
}

func TestHubBroadcastEnvelope(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, 16)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	recvFrame(t, client.send)

	hub.Broadcast("universe_loaded", map[string]interface{}{"instruments": 12})
	hub.Broadcast("job_started", nil)

	first := recvFrame(t, client.send)
	second := recvFrame(t, client.send)

	assert.Equal(t, events.MessageTypeUniverseLoaded, first.Type)
	assert.Equal(t, events.MessageTypeJobStarted, second.Type)
	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, time.UTC, first.Timestamp.Location())
}

func TestHubBroadcastUnencodableData(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	client := newTestClient(hub, 16)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	recvFrame(t, client.send)

	// Channels cannot be marshalled; the broadcast is logged and dropped.
	hub.Broadcast("job_progress", make(chan int))

	select {
	case payload := <-client.send:
		t.Fatalf("unexpected frame delivered: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubEvictsSlowClient(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	defer hub.Stop()

	// Buffer of one: the welcome message fills it and nothing drains it.
	slow := newTestClient(hub, 1)
	hub.Register(slow)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast("job_progress", map[string]interface{}{"current": 1})

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)

	// The welcome frame is still readable, then the channel is closed.
	recvFrame(t, slow.send)
	_, open := <-slow.send
	assert.False(t, open)
}

func TestHubRegisterAfterStop(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()
	hub.Stop()

	done := make(chan struct{})
	go func() {
		hub.Register(newTestClient(hub, 1))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Register blocked against a stopped hub")
	}
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubStopDisconnectsClients(t *testing.T) {
	hub := NewHub(testLogger())
	hub.Start()

	client := newTestClient(hub, 16)
	hub.Register(client)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	recvFrame(t, client.send)

	hub.Stop()

	select {
	case _, open := <-client.send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("send buffer not closed on stop")
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}

package websocket

import (
	"errors"
	"sync"
	"time"
)

// MockConnection is an in-memory Connection for tests. Reads are scripted
// with AddReadMessage; writes are captured for assertions.
type MockConnection struct {
	mu sync.Mutex

	written   []MockFrame
	scripted  []MockFrame
	readIndex int

	closed        bool
	readDeadline  time.Time
	writeDeadline time.Time
	readLimit     int64
	pongHandler   func(string) error
	remoteAddr    string
}

// MockFrame is one scripted or captured websocket frame.
type MockFrame struct {
	Type int
	Data []byte
	Err  error
}

// NewMockConnection creates an empty mock connection.
func NewMockConnection() *MockConnection {
	return &MockConnection{remoteAddr: "127.0.0.1:52000"}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("connection closed")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.written = append(m.written, MockFrame{Type: messageType, Data: buf})
	return nil
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, nil, errors.New("connection closed")
	}
	if m.readIndex < len(m.scripted) {
		frame := m.scripted[m.readIndex]
		m.readIndex++
		return frame.Type, frame.Data, frame.Err
	}
	return 0, nil, errors.New("no more frames")
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConnection) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readDeadline = t
	return nil
}

func (m *MockConnection) SetWriteDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDeadline = t
	return nil
}

func (m *MockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readLimit = limit
}

func (m *MockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pongHandler = h
}

func (m *MockConnection) RemoteAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteAddr
}

// AddReadMessage scripts a frame for ReadMessage to return.
func (m *MockConnection) AddReadMessage(messageType int, data []byte, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, MockFrame{Type: messageType, Data: data, Err: err})
}

// WrittenFrames returns a copy of everything written so far.
func (m *MockConnection) WrittenFrames() []MockFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockFrame, len(m.written))
	copy(out, m.written)
	return out
}

// Closed reports whether Close was called.
func (m *MockConnection) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

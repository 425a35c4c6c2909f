// Package events defines the websocket message contract shared by the hub
// and its subscribers. Every frame pushed to a client is a Message envelope;
// the Data payload depends on the message type.
package events

import (
	"time"
)

// MessageType identifies the kind of event carried by a Message.
type MessageType string

const (
	// MessageTypeConnected is sent to a client once, right after it
	// registers with the hub. Data is a ConnectionInfo.
	MessageTypeConnected MessageType = "connected"

	// MessageTypeHeartbeat is sent by clients to keep the connection
	// alive. The server never broadcasts it.
	MessageTypeHeartbeat MessageType = "heartbeat"

	// MessageTypeUniverseLoaded announces a finished data load. Data is a
	// domain.UniverseSummary.
	MessageTypeUniverseLoaded MessageType = "universe_loaded"

	// Job lifecycle events. Data is a domain.AnalysisJob snapshot taken at
	// the moment of the transition; progress events fire once per analyzed
	// instrument.
	MessageTypeJobStarted   MessageType = "job_started"
	MessageTypeJobProgress  MessageType = "job_progress"
	MessageTypeJobCompleted MessageType = "job_completed"
	MessageTypeJobFailed    MessageType = "job_failed"
	MessageTypeJobCancelled MessageType = "job_cancelled"
)

// Message is the envelope for every frame the hub sends.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// ConnectionInfo is the payload of the welcome message a client receives
// after registering.
type ConnectionInfo struct {
	ClientID   string    `json:"client_id"`
	Status     string    `json:"status"`
	ServerTime time.Time `json:"server_time"`
}

// Package events defines the status messages pushed to browsers over the
// websocket while a dataset is fetched and transformed.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeStatus     MessageType = "status"
	MessageTypeConnect    MessageType = "connect"
	MessageTypeDisconnect MessageType = "disconnect"
)

// Level grades a status notification the way the page colours it
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one human-readable progress message
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
	Time    time.Time `json:"time"`
}

// WebSocketMessage is the frame written to websocket clients
type WebSocketMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewStatusMessage wraps a notification in a websocket frame
func NewStatusMessage(id string, n Notification) WebSocketMessage {
	return WebSocketMessage{
		ID:        id,
		Type:      MessageTypeStatus,
		Timestamp: n.Time,
		Data:      n,
	}
}

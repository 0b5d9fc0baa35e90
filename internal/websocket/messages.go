package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypePassIssued        MessageType = "pass.issued"
	TypePassReversed      MessageType = "pass.reversed"
	TypePassCancelled     MessageType = "pass.cancelled"
	TypeScheduleRefreshed MessageType = "schedule.refreshed"
	TypeRefreshError      MessageType = "schedule.refresh_error"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// PassPayload is the payload for pass.issued and pass.reversed events.
type PassPayload struct {
	RouteID      int    `json:"route_id"`
	RouteName    string `json:"route_name"`
	Date         string `json:"date"`
	StartTime    string `json:"start_time"`
	IsPast       bool   `json:"is_past"`
	CancelFailed bool   `json:"cancel_failed,omitempty"`
}

// ScheduleRefreshedPayload is the payload for schedule.refreshed events.
type ScheduleRefreshedPayload struct {
	Routes  int    `json:"routes"`
	Trigger string `json:"trigger"` // "auto" or "manual"
}

// RefreshErrorPayload is the payload for schedule.refresh_error events.
type RefreshErrorPayload struct {
	Trigger string `json:"trigger"`
	Message string `json:"message"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

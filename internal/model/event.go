package model

import (
	"time"
)

// EventType represents the type of inbox event.
type EventType string

const (
	EventTypeConversationUpdated EventType = "conversation_updated"
	EventTypeConversationDeleted EventType = "conversation_deleted"
	EventTypeMessageRolledBack   EventType = "message_rolled_back"
	EventTypeSendFailed          EventType = "send_failed"
)

// Event is published to inbox observers after a state change.
type Event struct {
	Type          EventType `json:"type"`
	ParticipantID string    `json:"participant_id"`

	// Message is set for rollbacks and send failures.
	Message *Message  `json:"message,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// StreamEvent is an inbox event as sent to stream clients. Conversation
// carries the fresh list entry for update events.
type StreamEvent struct {
	Event
	Conversation *ConversationSummary `json:"conversation,omitempty"`
}

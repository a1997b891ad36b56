// Package model defines data structures for the chat sync client.
package model

// DefaultPreview is shown for a conversation without any messages.
const DefaultPreview = "No messages yet"

// ImagePreview is shown for a last message that carries only an image.
const ImagePreview = "[image]"

// UserContext identifies the signed-in user of the session. It is passed
// explicitly to every operation that needs to know who "me" is.
type UserContext struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Conversation is a direct conversation with one participant.
type Conversation struct {
	ParticipantID string    `json:"participant_id"`
	Messages      []Message `json:"messages,omitempty"`
	UnreadCount   int       `json:"unread_count"`
	HistoryLoaded bool      `json:"history_loaded"`

	// LastActivity is the fallback recency marker used while the log is empty.
	LastActivity int64 `json:"last_activity"`

	// Summary
	Preview   string `json:"preview"`
	PreviewAt int64  `json:"preview_at,omitempty"`
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() Conversation {
	out := *c
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

// Last returns the chronologically last message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// ConversationSummary is the list entry shown for a conversation.
type ConversationSummary struct {
	ParticipantID string `json:"participant_id"`
	UnreadCount   int    `json:"unread_count"`
	HistoryLoaded bool   `json:"history_loaded"`
	Preview       string `json:"preview"`
	PreviewAt     int64  `json:"preview_at,omitempty"`
	PreviewLabel  string `json:"preview_label,omitempty"`
	Active        bool   `json:"active"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}

package model

// RawMessage is the canonical shape of a message record as it arrives from
// history fetch, push delivery or a send response.
type RawMessage struct {
	// ID is the server-assigned identity. Zero marks a placeholder.
	ID         int64  `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	ImageRef   string `json:"image_ref,omitempty"`
	// CreatedAt is the server representation, possibly without a zone.
	CreatedAt string `json:"created_at"`
	IsRead    bool   `json:"is_read"`
}

// Reaction is a single emoji left on a message by one user.
type Reaction struct {
	Emoji     string `json:"emoji"`
	ReactorID string `json:"reactor_id"`
}

// Message is a normalized entry in a conversation log.
type Message struct {
	// Identity
	ID       int64  `json:"id"`
	LocalKey string `json:"local_key,omitempty"`

	// Routing
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`

	// Content
	Content  string `json:"content"`
	ImageRef string `json:"image_ref,omitempty"`

	// Timestamps
	CreatedAtRaw string `json:"created_at_raw"`
	CreatedAt    int64  `json:"created_at"`

	IsRead    bool       `json:"is_read"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// IsPlaceholder reports whether the message is still waiting for a durable
// identity from the server.
func (m *Message) IsPlaceholder() bool {
	return m.ID <= 0
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.Reactions != nil {
		m.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return m
}

// ToggleReaction adds the reaction if the reactor has not used the emoji on
// this message yet, and removes it otherwise. It returns true when added.
func (m *Message) ToggleReaction(emoji, reactorID string) bool {
	for i, r := range m.Reactions {
		if r.Emoji == emoji && r.ReactorID == reactorID {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return false
		}
	}
	m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, ReactorID: reactorID})
	return true
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content  string `json:"content"`
	ImageRef string `json:"image_ref,omitempty"`
}

// ToggleReactionRequest is the request to toggle a reaction.
type ToggleReactionRequest struct {
	Emoji string `json:"emoji"`
}

// ToggleReactionResponse reports the reaction state after a toggle.
type ToggleReactionResponse struct {
	Emoji string `json:"emoji"`
	Added bool   `json:"added"`
}

// MessageView is a message decorated with its display hints.
type MessageView struct {
	Message
	Hints Hints  `json:"hints"`
	Label string `json:"label"`
}

// ListMessagesResponse is the response for listing a conversation log.
type ListMessagesResponse struct {
	ParticipantID string        `json:"participant_id"`
	Messages      []MessageView `json:"messages"`
	HistoryLoaded bool          `json:"history_loaded"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/grouping"
	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/ranking"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

// EnsureConversation creates the conversation if needed and raises its
// fallback activity marker to lastActivity. It is used to seed the list from
// a contact directory before any history is loaded.
func (s *Inbox) EnsureConversation(participantID string, lastActivity int64) (model.Conversation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Conversation{}, ErrClosed
	}
	conv := s.ensureLocked(participantID)
	if len(conv.Messages) == 0 && lastActivity > conv.LastActivity {
		conv.LastActivity = lastActivity
	}
	out := conv.Clone()
	s.mu.Unlock()

	s.publish(updated(participantID))
	return out, nil
}

// Get returns a copy of one conversation.
func (s *Inbox) Get(participantID string) (model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[participantID]
	if !exists {
		return model.Conversation{}, notFound(participantID)
	}
	return conv.Clone(), nil
}

// Conversations returns copies of all conversations in list order.
func (s *Inbox) Conversations() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := s.rankedLocked()
	out := make([]model.Conversation, len(ranked))
	for i, c := range ranked {
		out[i] = c.Clone()
	}
	return out
}

// List returns the ranked conversation list with relative preview labels.
func (s *Inbox) List() *model.ListConversationsResponse {
	s.mu.RLock()
	ranked := s.rankedLocked()
	summaries := make([]model.ConversationSummary, len(ranked))
	for i, c := range ranked {
		summaries[i] = s.summaryLocked(c)
	}
	s.mu.RUnlock()

	for i := range summaries {
		if summaries[i].PreviewAt > 0 {
			summaries[i].PreviewLabel = s.normalizer.RelativeLabel(summaries[i].PreviewAt)
		}
	}

	return &model.ListConversationsResponse{
		Conversations: summaries,
		Total:         len(summaries),
	}
}

// Summary returns the list entry of one conversation.
func (s *Inbox) Summary(participantID string) (model.ConversationSummary, error) {
	s.mu.RLock()
	conv, exists := s.conversations[participantID]
	if !exists {
		s.mu.RUnlock()
		return model.ConversationSummary{}, notFound(participantID)
	}
	summary := s.summaryLocked(conv)
	s.mu.RUnlock()

	if summary.PreviewAt > 0 {
		summary.PreviewLabel = s.normalizer.RelativeLabel(summary.PreviewAt)
	}
	return summary, nil
}

// Messages returns the log of one conversation with display hints computed
// for the session user.
func (s *Inbox) Messages(participantID string) (*model.ListMessagesResponse, error) {
	conv, err := s.Get(participantID)
	if err != nil {
		return nil, err
	}

	hints := grouping.PlanAll(conv.Messages, s.user.UserID)
	views := make([]model.MessageView, len(conv.Messages))
	for i, m := range conv.Messages {
		views[i] = model.MessageView{
			Message: m,
			Hints:   hints[i],
			Label:   s.normalizer.RelativeLabel(m.CreatedAt),
		}
	}

	return &model.ListMessagesResponse{
		ParticipantID: participantID,
		Messages:      views,
		HistoryLoaded: conv.HistoryLoaded,
	}, nil
}

// Active returns the participant of the conversation being viewed, if any.
func (s *Inbox) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive marks the conversation as the one being viewed, creating it if
// needed. Its unread counter is reset and counterpart messages are marked
// read.
func (s *Inbox) SetActive(participantID string) (model.Conversation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Conversation{}, ErrClosed
	}
	conv := s.ensureLocked(participantID)
	s.active = participantID
	conv.UnreadCount = 0
	for i := range conv.Messages {
		if conv.Messages[i].SenderID != s.user.UserID {
			conv.Messages[i].IsRead = true
		}
	}
	out := conv.Clone()
	s.mu.Unlock()

	s.publish(updated(participantID))
	return out, nil
}

// ClearActive leaves the currently viewed conversation.
func (s *Inbox) ClearActive() {
	s.mu.Lock()
	s.active = ""
	s.mu.Unlock()
}

// Delete removes a conversation. This is the only way a conversation goes
// away.
func (s *Inbox) Delete(participantID string) error {
	s.mu.Lock()
	if _, exists := s.conversations[participantID]; !exists {
		s.mu.Unlock()
		return notFound(participantID)
	}
	delete(s.conversations, participantID)
	for i, id := range s.order {
		if id == participantID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == participantID {
		s.active = ""
	}
	metrics.ConversationsTracked.Set(float64(len(s.conversations)))
	s.mu.Unlock()

	s.logger.Info("conversation deleted", zap.String("participant_id", participantID))
	s.publish(model.Event{Type: model.EventTypeConversationDeleted, ParticipantID: participantID})
	return nil
}

func (s *Inbox) ensureLocked(participantID string) *model.Conversation {
	if conv, exists := s.conversations[participantID]; exists {
		return conv
	}
	conv := &model.Conversation{
		ParticipantID: participantID,
		Preview:       model.DefaultPreview,
	}
	s.conversations[participantID] = conv
	s.order = append(s.order, participantID)
	metrics.ConversationsTracked.Set(float64(len(s.conversations)))

	s.logger.Debug("conversation created", zap.String("participant_id", participantID))
	return conv
}

func (s *Inbox) rankedLocked() []*model.Conversation {
	convs := make([]*model.Conversation, 0, len(s.order))
	for _, id := range s.order {
		convs = append(convs, s.conversations[id])
	}
	ranking.Rank(convs)
	return convs
}

func (s *Inbox) summaryLocked(c *model.Conversation) model.ConversationSummary {
	return model.ConversationSummary{
		ParticipantID: c.ParticipantID,
		UnreadCount:   c.UnreadCount,
		HistoryLoaded: c.HistoryLoaded,
		Preview:       c.Preview,
		PreviewAt:     c.PreviewAt,
		Active:        c.ParticipantID == s.active,
	}
}

// refreshSummaryLocked recomputes the preview and activity marker from the
// last entry of the log.
func refreshSummaryLocked(conv *model.Conversation) {
	last, ok := conv.Last()
	if !ok {
		conv.Preview = model.DefaultPreview
		conv.PreviewAt = 0
		return
	}
	conv.Preview = previewText(last)
	conv.PreviewAt = last.CreatedAt
	conv.LastActivity = last.CreatedAt
}

func previewText(m model.Message) string {
	switch {
	case m.Content != "":
		return m.Content
	case m.ImageRef != "":
		return model.ImagePreview
	default:
		return ""
	}
}

func notFound(participantID string) error {
	return fmt.Errorf("%w: %s", ErrConversationNotFound, participantID)
}

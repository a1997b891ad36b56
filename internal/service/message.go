package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/identity"
	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

// Outcome describes what a merge did.
type Outcome struct {
	ParticipantID string
	Action        identity.Action
}

// Merge routes a record to the conversation with its counterpart (the side
// that is not the session user) and merges it there.
func (s *Inbox) Merge(raw model.RawMessage) (Outcome, error) {
	return s.merge(raw, metrics.SourcePush)
}

// MergeInto merges a record into the conversation with participantID,
// creating the conversation if needed. Content is never validated: empty
// text, missing images and unknown senders are all merged.
func (s *Inbox) MergeInto(participantID string, raw model.RawMessage) (Outcome, error) {
	return s.mergeInto(participantID, raw, metrics.SourcePush)
}

// HandlePush is the push-delivery callback. Deliveries after Close are
// dropped.
func (s *Inbox) HandlePush(raw model.RawMessage) {
	if s.Closed() {
		metrics.PushDeliveriesTotal.WithLabelValues("dropped").Inc()
		return
	}

	out, err := s.merge(raw, metrics.SourcePush)
	if err != nil {
		metrics.PushDeliveriesTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("push delivery not merged",
			zap.Error(err),
			zap.Int64("message_id", raw.ID),
			zap.String("sender_id", raw.SenderID),
		)
		return
	}

	metrics.PushDeliveriesTotal.WithLabelValues("merged").Inc()
	s.logger.Debug("push delivery merged",
		zap.String("participant_id", out.ParticipantID),
		zap.String("action", string(out.Action)),
		zap.Int64("message_id", raw.ID),
	)
}

func (s *Inbox) merge(raw model.RawMessage, source string) (Outcome, error) {
	participantID := s.counterpart(raw)
	if participantID == "" {
		return Outcome{}, ErrUnroutable
	}
	return s.mergeInto(participantID, raw, source)
}

func (s *Inbox) mergeInto(participantID string, raw model.RawMessage, source string) (Outcome, error) {
	msg := s.toMessage(raw)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Outcome{}, ErrClosed
	}
	conv := s.ensureLocked(participantID)
	d := s.applyLocked(conv, msg, true)
	s.mu.Unlock()

	metrics.RecordMerge(source, string(d.Action))
	if d.Action != identity.ActionNoop {
		s.publish(updated(participantID))
	}
	return Outcome{ParticipantID: participantID, Action: d.Action}, nil
}

// applyLocked resolves msg against the log and applies the decision. The log
// is re-sorted and the summary recomputed afterwards. With countUnread set,
// a true insert of a counterpart message outside the active conversation
// bumps the unread counter.
func (s *Inbox) applyLocked(conv *model.Conversation, msg model.Message, countUnread bool) identity.Decision {
	d := identity.Resolve(&msg, conv.Messages)
	switch d.Action {
	case identity.ActionInsert:
		conv.Messages = append(conv.Messages, msg)
	case identity.ActionReplace:
		conv.Messages[d.Index] = msg
	case identity.ActionNoop:
		// Duplicate delivery; the log stays as it is.
	}

	if d.Action != identity.ActionNoop {
		sortLog(conv.Messages)
		refreshSummaryLocked(conv)
	}

	switch {
	case conv.ParticipantID == s.active:
		conv.UnreadCount = 0
	case countUnread && d.Action == identity.ActionInsert && msg.SenderID != s.user.UserID:
		conv.UnreadCount++
	}
	return d
}

// LoadHistory fetches and merges the history with one participant. On
// failure the conversation still exists, showing the default preview if it
// has no messages, and the error wraps ErrFetchFailed.
func (s *Inbox) LoadHistory(ctx context.Context, participantID string) (model.Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "Inbox.LoadHistory",
		trace.WithAttributes(attribute.String("participant_id", participantID)),
	)
	defer span.End()

	if s.Closed() {
		return model.Conversation{}, ErrClosed
	}

	start := time.Now()
	records, err := s.history.History(ctx, participantID)
	if err != nil {
		metrics.RecordHistoryFetch("error", time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "history fetch failed")

		s.mu.Lock()
		conv := s.ensureLocked(participantID)
		refreshSummaryLocked(conv)
		out := conv.Clone()
		s.mu.Unlock()

		s.logger.Warn("history fetch failed",
			zap.String("participant_id", participantID),
			zap.Error(err),
		)
		s.publish(updated(participantID))
		return out, fmt.Errorf("%w: %s: %w", ErrFetchFailed, participantID, err)
	}
	metrics.RecordHistoryFetch("success", time.Since(start).Seconds())

	msgs := make([]model.Message, len(records))
	for i, raw := range records {
		msgs[i] = s.toMessage(raw)
	}
	// Oldest first so fingerprint matches see earlier entries before later ones.
	sortLog(msgs)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Conversation{}, ErrClosed
	}
	conv := s.ensureLocked(participantID)
	counts := make(map[identity.Action]int, 3)
	for _, msg := range msgs {
		d := s.applyLocked(conv, msg, false)
		counts[d.Action]++
	}
	conv.HistoryLoaded = true
	refreshSummaryLocked(conv)
	if participantID == s.active {
		conv.UnreadCount = 0
	} else {
		conv.UnreadCount = s.unreadLocked(conv)
	}
	out := conv.Clone()
	s.mu.Unlock()

	for action, n := range counts {
		metrics.MergesTotal.WithLabelValues(metrics.SourceHistory, string(action)).Add(float64(n))
	}
	span.SetAttributes(attribute.Int("records", len(records)))

	s.logger.Debug("history loaded",
		zap.String("participant_id", participantID),
		zap.Int("records", len(records)),
		zap.Int("inserted", counts[identity.ActionInsert]),
		zap.Int("replaced", counts[identity.ActionReplace]),
	)
	s.publish(updated(participantID))
	return out, nil
}

// RefreshLoaded reloads the history of every conversation that has been
// loaded before, plus the active one. Failures are collected, not fatal.
func (s *Inbox) RefreshLoaded(ctx context.Context) error {
	s.mu.RLock()
	var targets []string
	for _, id := range s.order {
		if s.conversations[id].HistoryLoaded || id == s.active {
			targets = append(targets, id)
		}
	}
	s.mu.RUnlock()

	var errs []error
	for _, id := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.LoadHistory(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send shows an optimistic placeholder, sends the message and swaps in the
// durable copy. On failure the placeholder is removed, a send_failed event
// is published and the error wraps ErrSendFailed. Sends are not retried.
func (s *Inbox) Send(ctx context.Context, participantID, content, imageRef string) (model.Message, error) {
	ctx, span := s.tracer.Start(ctx, "Inbox.Send",
		trace.WithAttributes(attribute.String("participant_id", participantID)),
	)
	defer span.End()

	now := s.normalizer.Now()
	placeholder := model.Message{
		LocalKey:     uuid.NewString(),
		SenderID:     s.user.UserID,
		ReceiverID:   participantID,
		Content:      content,
		ImageRef:     imageRef,
		CreatedAtRaw: time.UnixMilli(now).UTC().Format(time.RFC3339Nano),
		CreatedAt:    now,
		IsRead:       true,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Message{}, ErrClosed
	}
	conv := s.ensureLocked(participantID)
	prevActivity := conv.LastActivity
	// A new local send is always a new message, even if it repeats text
	// that is still inside the fingerprint window.
	conv.Messages = append(conv.Messages, placeholder)
	sortLog(conv.Messages)
	refreshSummaryLocked(conv)
	s.mu.Unlock()

	metrics.RecordMerge(metrics.SourceLocal, string(identity.ActionInsert))
	s.publish(updated(participantID))

	raw, err := s.sender.Send(ctx, participantID, content, imageRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		s.rollback(participantID, placeholder, prevActivity, err)
		return model.Message{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	durable := s.toMessage(raw)
	if durable.SenderID == "" {
		durable.SenderID = s.user.UserID
	}
	if durable.ReceiverID == "" {
		durable.ReceiverID = participantID
	}
	span.SetAttributes(attribute.Int64("message_id", durable.ID))

	action := s.confirm(participantID, placeholder.LocalKey, durable)
	metrics.RecordMerge(metrics.SourceSend, string(action))
	s.publish(updated(participantID))

	return durable, nil
}

// confirm swaps the placeholder for its durable copy. If push delivery got
// the durable copy in first, the placeholder is dropped instead.
func (s *Inbox) confirm(participantID, localKey string, durable model.Message) identity.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[participantID]
	if s.closed || !exists {
		return identity.ActionNoop
	}

	placeholderAt := identity.IndexOfLocalKey(conv.Messages, localKey)
	action := identity.ActionNoop

	switch {
	case identity.IndexOfID(conv.Messages, durable.ID) >= 0:
		if placeholderAt >= 0 {
			conv.Messages = slices.Delete(conv.Messages, placeholderAt, placeholderAt+1)
		}
	case placeholderAt >= 0:
		conv.Messages[placeholderAt] = durable
		action = identity.ActionReplace
	default:
		return s.applyLocked(conv, durable, false).Action
	}

	sortLog(conv.Messages)
	refreshSummaryLocked(conv)
	return action
}

// rollback removes the placeholder. An emptied log gets back the activity
// marker it had before the send.
func (s *Inbox) rollback(participantID string, placeholder model.Message, prevActivity int64, cause error) {
	s.mu.Lock()
	if conv, exists := s.conversations[participantID]; exists {
		if i := identity.IndexOfLocalKey(conv.Messages, placeholder.LocalKey); i >= 0 {
			conv.Messages = slices.Delete(conv.Messages, i, i+1)
			refreshSummaryLocked(conv)
			if len(conv.Messages) == 0 && conv.LastActivity == placeholder.CreatedAt {
				conv.LastActivity = prevActivity
			}
		}
	}
	s.mu.Unlock()

	metrics.SendFailuresTotal.Inc()
	s.logger.Warn("send failed, placeholder rolled back",
		zap.String("participant_id", participantID),
		zap.String("local_key", placeholder.LocalKey),
		zap.Error(cause),
	)

	s.publish(
		model.Event{Type: model.EventTypeMessageRolledBack, ParticipantID: participantID, Message: &placeholder},
		model.Event{Type: model.EventTypeSendFailed, ParticipantID: participantID, Message: &placeholder, Reason: cause.Error()},
		updated(participantID),
	)
}

// ToggleReaction adds or removes the session user's reaction on a durable
// message. It returns true when the reaction was added.
func (s *Inbox) ToggleReaction(participantID string, messageID int64, emoji string) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	conv, exists := s.conversations[participantID]
	if !exists {
		s.mu.Unlock()
		return false, notFound(participantID)
	}
	i := identity.IndexOfID(conv.Messages, messageID)
	if i < 0 {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %d", ErrMessageNotFound, messageID)
	}
	added := conv.Messages[i].ToggleReaction(emoji, s.user.UserID)
	s.mu.Unlock()

	s.publish(updated(participantID))
	return added, nil
}

func (s *Inbox) counterpart(raw model.RawMessage) string {
	if raw.SenderID == s.user.UserID {
		return raw.ReceiverID
	}
	return raw.SenderID
}

func (s *Inbox) toMessage(raw model.RawMessage) model.Message {
	id := raw.ID
	if id < 0 {
		id = 0
	}
	return model.Message{
		ID:           id,
		SenderID:     raw.SenderID,
		ReceiverID:   raw.ReceiverID,
		Content:      raw.Content,
		ImageRef:     raw.ImageRef,
		CreatedAtRaw: raw.CreatedAt,
		CreatedAt:    s.normalizer.Normalize(raw.CreatedAt),
		IsRead:       raw.IsRead,
	}
}

func (s *Inbox) unreadLocked(conv *model.Conversation) int {
	n := 0
	for _, m := range conv.Messages {
		if m.SenderID != s.user.UserID && !m.IsRead {
			n++
		}
	}
	return n
}

func sortLog(msgs []model.Message) {
	slices.SortStableFunc(msgs, func(a, b model.Message) int {
		return cmp.Compare(a.CreatedAt, b.CreatedAt)
	})
}

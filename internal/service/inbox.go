// Package service provides the conversation state of a chat session: it
// merges messages from history, push delivery and local sends into
// per-conversation logs and publishes changes to observers.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/timestamp"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
	"github.com/capitalize-ai/chatsync/pkg/tracing"
)

var (
	// ErrFetchFailed wraps history fetch failures.
	ErrFetchFailed = errors.New("history fetch failed")
	// ErrSendFailed wraps send failures. The placeholder has been rolled back.
	ErrSendFailed = errors.New("send failed")
	// ErrConversationNotFound is returned for unknown participants.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound is returned for unknown message IDs.
	ErrMessageNotFound = errors.New("message not found")
	// ErrUnroutable is returned for records that name no counterpart.
	ErrUnroutable = errors.New("message has no counterpart")
	// ErrClosed is returned once the inbox has been closed.
	ErrClosed = errors.New("inbox closed")
)

// HistoryFetcher retrieves the message history with one participant, in any
// order.
type HistoryFetcher interface {
	History(ctx context.Context, participantID string) ([]model.RawMessage, error)
}

// Sender delivers a message and returns the durable copy.
type Sender interface {
	Send(ctx context.Context, participantID, content, imageRef string) (model.RawMessage, error)
}

// PushSubscriber delivers messages as they arrive. onMessage may be called
// concurrently, in any order and more than once per message.
type PushSubscriber interface {
	Subscribe(ctx context.Context, onMessage func(model.RawMessage)) (func(), error)
}

// Inbox owns every conversation log of one user session. All mutations go
// through it and are serialized by its mutex; collaborator calls are made
// without holding the lock.
type Inbox struct {
	user       model.UserContext
	history    HistoryFetcher
	sender     Sender
	push       PushSubscriber
	normalizer *timestamp.Normalizer
	logger     *logger.Logger
	tracer     trace.Tracer

	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	order         []string // creation order, used as the ranking tie-break
	active        string
	closed        bool
	done          chan struct{}
	pushActive    bool
	unsubscribe   func()

	obsMu        sync.Mutex
	observers    map[int]func(model.Event)
	nextObserver int
}

// NewInbox creates an inbox for the given user. push may be nil, in which
// case the inbox runs in history-only mode.
func NewInbox(
	user model.UserContext,
	history HistoryFetcher,
	sender Sender,
	push PushSubscriber,
	normalizer *timestamp.Normalizer,
	log *logger.Logger,
) *Inbox {
	return &Inbox{
		user:          user,
		history:       history,
		sender:        sender,
		push:          push,
		normalizer:    normalizer,
		logger:        log.Named("inbox"),
		tracer:        tracing.Tracer("github.com/capitalize-ai/chatsync/internal/service"),
		conversations: make(map[string]*model.Conversation),
		done:          make(chan struct{}),
		observers:     make(map[int]func(model.Event)),
	}
}

// User returns the session user.
func (s *Inbox) User() model.UserContext {
	return s.user
}

// Normalizer returns the timestamp normalizer used by the inbox.
func (s *Inbox) Normalizer() *timestamp.Normalizer {
	return s.normalizer
}

// Start subscribes to push delivery. A subscription failure is not fatal:
// the inbox keeps working from history fetches alone.
func (s *Inbox) Start(ctx context.Context) {
	if s.push == nil {
		s.logger.Info("no push subscriber configured, running history-only")
		metrics.SetPushActive(false)
		return
	}

	unsubscribe, err := s.push.Subscribe(ctx, s.HandlePush)
	if err != nil {
		s.logger.Warn("push subscription failed, running history-only", zap.Error(err))
		metrics.SetPushActive(false)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribe = unsubscribe
	s.pushActive = true
	s.mu.Unlock()

	metrics.SetPushActive(true)
	s.logger.Info("push delivery active", zap.String("user_id", s.user.UserID))
}

// PushActive reports whether push delivery is established.
func (s *Inbox) PushActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pushActive
}

// Close stops push delivery and drops all observers. Deliveries that arrive
// afterwards are ignored.
func (s *Inbox) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.pushActive = false
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	metrics.SetPushActive(false)

	s.obsMu.Lock()
	s.observers = make(map[int]func(model.Event))
	s.obsMu.Unlock()

	s.logger.Info("inbox closed")
}

// Closed reports whether Close has been called.
func (s *Inbox) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Done is closed when the inbox is closed.
func (s *Inbox) Done() <-chan struct{} {
	return s.done
}

// Subscribe registers an observer for inbox events. Observers are called
// synchronously after the state change and must not block.
func (s *Inbox) Subscribe(fn func(model.Event)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *Inbox) publish(events ...model.Event) {
	s.obsMu.Lock()
	fns := make([]func(model.Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	now := time.Now()
	for _, ev := range events {
		if ev.At.IsZero() {
			ev.At = now
		}
		for _, fn := range fns {
			fn(ev)
		}
	}
}

func updated(participantID string) model.Event {
	return model.Event{Type: model.EventTypeConversationUpdated, ParticipantID: participantID}
}

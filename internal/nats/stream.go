package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/wire"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

const (
	// StreamName is the name of the chat stream.
	StreamName = "CHATS"

	// SubjectPrefix is the prefix for all direct-message subjects.
	SubjectPrefix = "chat.dm"

	historyBatch      = 256
	historyMaxWait    = 2 * time.Second
	inactiveThreshold = 30 * time.Second
)

// ErrInvalidSubjectToken is returned for user IDs that cannot appear in a
// subject.
var ErrInvalidSubjectToken = errors.New("invalid subject token")

// StreamManager implements history, send and push delivery for one user on
// top of JetStream.
type StreamManager struct {
	client *Client
	userID string
	logger *logger.Logger
	now    func() time.Time
}

// NewStreamManager creates a stream manager acting as userID.
func NewStreamManager(client *Client, userID string, log *logger.Logger) *StreamManager {
	return &StreamManager{
		client: client,
		userID: userID,
		logger: log.Named("stream"),
		now:    time.Now,
	}
}

// EnsureStream ensures the chat stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Direct chat messages",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	m.logger.Info("stream created", zap.String("stream", StreamName))
	return nil
}

// MessageSubject returns the subject a message from sender to receiver is
// published on.
func MessageSubject(receiverID, senderID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, receiverID, senderID)
}

// PairFilters returns the filter subjects covering both directions between
// two users.
func PairFilters(userID, participantID string) []string {
	if userID == participantID {
		return []string{MessageSubject(userID, userID)}
	}
	return []string{
		MessageSubject(participantID, userID),
		MessageSubject(userID, participantID),
	}
}

// InboundFilter matches every message addressed to userID.
func InboundFilter(userID string) string {
	return fmt.Sprintf("%s.%s.*", SubjectPrefix, userID)
}

// OutboundFilter matches every message sent by userID, from any device.
func OutboundFilter(userID string) string {
	return fmt.Sprintf("%s.*.%s", SubjectPrefix, userID)
}

// ValidToken reports whether id can be used as a single subject token.
func ValidToken(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return r == '.' || r == '*' || r == '>' || unicode.IsSpace(r)
	})
}

func checkTokens(ids ...string) error {
	for _, id := range ids {
		if !ValidToken(id) {
			return fmt.Errorf("%w: %q", ErrInvalidSubjectToken, id)
		}
	}
	return nil
}

// History returns every stored message between the user and participantID,
// in stream order.
func (m *StreamManager) History(ctx context.Context, participantID string) ([]model.RawMessage, error) {
	if err := checkTokens(m.userID, participantID); err != nil {
		return nil, err
	}
	js := m.client.JetStream()

	consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubjects:    PairFilters(m.userID, participantID),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: inactiveThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	name := consumer.CachedInfo().Name
	defer m.deleteConsumer(name)

	remaining := consumer.CachedInfo().NumPending
	records := make([]model.RawMessage, 0, remaining)

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := historyBatch
		if remaining < uint64(n) {
			n = int(remaining)
		}
		batch, err := consumer.Fetch(n, jetstream.FetchMaxWait(historyMaxWait))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch messages: %w", err)
		}

		received := 0
		for msg := range batch.Messages() {
			received++
			rec, err := m.record(msg)
			if err != nil {
				m.logger.Warn("skipping undecodable message",
					zap.String("subject", msg.Subject()),
					zap.Error(err),
				)
				continue
			}
			records = append(records, rec)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
			return nil, fmt.Errorf("batch error: %w", err)
		}
		if received == 0 {
			break
		}
		remaining -= uint64(received)
	}

	return records, nil
}

// Send publishes a message to participantID and returns the stored copy. The
// stream sequence becomes the message ID.
func (m *StreamManager) Send(ctx context.Context, participantID, content, imageRef string) (model.RawMessage, error) {
	if err := checkTokens(m.userID, participantID); err != nil {
		return model.RawMessage{}, err
	}

	rec := model.RawMessage{
		SenderID:   m.userID,
		ReceiverID: participantID,
		Content:    content,
		ImageRef:   imageRef,
		CreatedAt:  m.now().UTC().Format(time.RFC3339Nano),
	}
	data, err := wire.Encode(rec)
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, MessageSubject(participantID, m.userID), data)
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("failed to publish message: %w", err)
	}

	rec.ID = int64(ack.Sequence)
	return rec, nil
}

// Subscribe delivers new messages to and from the user as they are stored.
// Messages a user sends to themselves match both consumers and arrive twice.
func (m *StreamManager) Subscribe(ctx context.Context, onMessage func(model.RawMessage)) (func(), error) {
	if err := checkTokens(m.userID); err != nil {
		return nil, err
	}
	js := m.client.JetStream()

	var (
		running []jetstream.ConsumeContext
		names   []string
	)
	stop := func() {
		for _, cc := range running {
			cc.Stop()
		}
		for _, name := range names {
			m.deleteConsumer(name)
		}
	}

	handler := func(msg jetstream.Msg) {
		rec, err := m.record(msg)
		if err != nil {
			m.logger.Warn("dropping undecodable push message",
				zap.String("subject", msg.Subject()),
				zap.Error(err),
			)
			return
		}
		onMessage(rec)
	}

	for _, filter := range []string{InboundFilter(m.userID), OutboundFilter(m.userID)} {
		consumer, err := js.CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
			FilterSubject:     filter,
			AckPolicy:         jetstream.AckNonePolicy,
			DeliverPolicy:     jetstream.DeliverNewPolicy,
			InactiveThreshold: inactiveThreshold,
		})
		if err != nil {
			stop()
			return nil, fmt.Errorf("failed to create push consumer: %w", err)
		}
		names = append(names, consumer.CachedInfo().Name)

		filter := filter
		cc, err := consumer.Consume(handler, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			m.logger.Warn("push consumer error", zap.String("filter", filter), zap.Error(err))
		}))
		if err != nil {
			stop()
			return nil, fmt.Errorf("failed to start push consumer: %w", err)
		}
		running = append(running, cc)
	}

	m.logger.Info("push consumers started", zap.String("user_id", m.userID))
	return stop, nil
}

func (m *StreamManager) record(msg jetstream.Msg) (model.RawMessage, error) {
	meta, err := msg.Metadata()
	if err != nil {
		return model.RawMessage{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	return decodeRecord(msg.Data(), meta.Sequence.Stream, meta.Timestamp)
}

// decodeRecord decodes a stored message. The stream sequence is the durable
// ID; the stored time stands in for a missing timestamp.
func decodeRecord(data []byte, sequence uint64, stored time.Time) (model.RawMessage, error) {
	rec, err := wire.Decode(data)
	if err != nil {
		return model.RawMessage{}, err
	}
	rec.ID = int64(sequence)
	if rec.CreatedAt == "" && !stored.IsZero() {
		rec.CreatedAt = stored.UTC().Format(time.RFC3339Nano)
	}
	return rec, nil
}

func (m *StreamManager) deleteConsumer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.client.JetStream().DeleteConsumer(ctx, StreamName, name)
	if err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
		m.logger.Debug("failed to delete consumer", zap.String("consumer", name), zap.Error(err))
	}
}

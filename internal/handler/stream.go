package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/middleware"
	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/service"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/metrics"
)

const (
	defaultHeartbeat = 30 * time.Second
	streamBuffer     = 64
)

// StreamHandler handles the SSE event stream.
type StreamHandler struct {
	inbox     *service.Inbox
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(inbox *service.Inbox, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		inbox:     inbox,
		logger:    log,
		heartbeat: defaultHeartbeat,
	}
}

// Stream handles GET /api/v1/events. The client first receives a snapshot of
// the ranked conversation list, then one event per inbox change. A client
// that falls behind loses events rather than stalling the inbox; it can
// resynchronise from the list endpoint.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := middleware.RequestLogger(ctx, h.logger)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Track active connection
	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	events := make(chan model.Event, streamBuffer)
	unsubscribe := h.inbox.Subscribe(func(ev model.Event) {
		select {
		case events <- ev:
		default:
			log.Warn("SSE client too slow, event dropped",
				zap.String("type", string(ev.Type)),
				zap.String("participant_id", ev.ParticipantID),
			)
		}
	})
	defer unsubscribe()

	if err := sendSSEEvent(w, flusher, "snapshot", h.inbox.List()); err != nil {
		log.Warn("failed to write snapshot", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return

		case <-h.inbox.Done():
			_ = sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
				Code:    "inbox_closed",
				Message: "the inbox has been closed",
			})
			return

		case ev := <-events:
			if err := sendSSEEvent(w, flusher, string(ev.Type), h.streamEvent(ev)); err != nil {
				log.Debug("SSE write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			if err := sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) streamEvent(ev model.Event) *model.StreamEvent {
	out := &model.StreamEvent{Event: ev}
	if ev.Type == model.EventTypeConversationUpdated {
		if summary, err := h.inbox.Summary(ev.ParticipantID); err == nil {
			out.Conversation = &summary
		}
	}
	return out
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/middleware"
	"github.com/capitalize-ai/chatsync/internal/model"
	"github.com/capitalize-ai/chatsync/internal/service"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	inbox  *service.Inbox
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(inbox *service.Inbox, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		inbox:  inbox,
		logger: log,
	}
}

// List handles GET /api/v1/conversations/{participantID}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	participantID, ok := participantParam(w, r)
	if !ok {
		return
	}

	resp, err := h.inbox.Messages(participantID)
	if err != nil {
		writeError(w, errorStatus(err), "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/conversations/{participantID}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participantID, ok := participantParam(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content, req.ImageRef); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.inbox.Send(ctx, participantID, req.Content, req.ImageRef)
	if err != nil {
		middleware.RequestLogger(ctx, h.logger).Warn("failed to send message",
			zap.String("participant_id", participantID),
			zap.Error(err),
		)
		writeError(w, errorStatus(err), "failed to send message")
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// ToggleReaction handles
// POST /api/v1/conversations/{participantID}/messages/{messageID}/reactions
func (h *MessageHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	participantID, ok := participantParam(w, r)
	if !ok {
		return
	}

	messageID, err := middleware.ValidateMessageID(chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ToggleReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateEmoji(req.Emoji); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	added, err := h.inbox.ToggleReaction(participantID, messageID, req.Emoji)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &model.ToggleReactionResponse{
		Emoji: req.Emoji,
		Added: added,
	})
}

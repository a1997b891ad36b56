// Package handler provides HTTP handlers for the chat daemon.
package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/middleware"
	"github.com/capitalize-ai/chatsync/internal/service"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	inbox  *service.Inbox
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(inbox *service.Inbox, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		inbox:  inbox,
		logger: log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.inbox.List())
}

// Get handles GET /api/v1/conversations/{participantID}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	participantID, ok := participantParam(w, r)
	if !ok {
		return
	}

	summary, err := h.inbox.Summary(participantID)
	if err != nil {
		writeError(w, errorStatus(err), "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// Delete handles DELETE /api/v1/conversations/{participantID}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	participantID, ok := participantParam(w, r)
	if !ok {
		return
	}

	if err := h.inbox.Delete(participantID); err != nil {
		writeError(w, errorStatus(err), "conversation not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LoadHistory handles POST /api/v1/conversations/{participantID}/history
func (h *ConversationHandler) LoadHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participantID, ok := participantParam(w, r)
	if !ok {
		return
	}

	if _, err := h.inbox.LoadHistory(ctx, participantID); err != nil {
		// The conversation still exists and shows its fallback preview.
		middleware.RequestLogger(ctx, h.logger).Warn("history load failed",
			zap.String("participant_id", participantID),
			zap.Error(err),
		)
		writeError(w, errorStatus(err), "failed to load history")
		return
	}

	summary, err := h.inbox.Summary(participantID)
	if err != nil {
		writeError(w, errorStatus(err), "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// MarkRead handles POST /api/v1/conversations/{participantID}/read. The
// conversation becomes the active one and its unread counter resets.
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	participantID, ok := participantParam(w, r)
	if !ok {
		return
	}

	if _, err := h.inbox.SetActive(participantID); err != nil {
		writeError(w, errorStatus(err), "failed to activate conversation")
		return
	}

	summary, err := h.inbox.Summary(participantID)
	if err != nil {
		writeError(w, errorStatus(err), "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Leave handles DELETE /api/v1/conversations/{participantID}/read. It only
// clears the active conversation if it is this one.
func (h *ConversationHandler) Leave(w http.ResponseWriter, r *http.Request) {
	participantID, ok := participantParam(w, r)
	if !ok {
		return
	}

	if h.inbox.Active() == participantID {
		h.inbox.ClearActive()
	}
	w.WriteHeader(http.StatusNoContent)
}

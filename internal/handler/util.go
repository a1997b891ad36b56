package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/chatsync/internal/middleware"
	"github.com/capitalize-ai/chatsync/internal/service"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// errorStatus maps inbox errors to HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrConversationNotFound), errors.Is(err, service.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrFetchFailed), errors.Is(err, service.ErrSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// participantParam reads and validates the participant path parameter. It
// writes the error response and returns false when the ID is unusable.
func participantParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	participantID := chi.URLParam(r, "participantID")
	if err := middleware.ValidateParticipantID(participantID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return participantID, true
}

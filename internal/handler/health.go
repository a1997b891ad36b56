package handler

import (
	"net/http"

	"github.com/capitalize-ai/chatsync/internal/service"
)

// ConnectionChecker reports transport connectivity. *nats.Client satisfies
// it.
type ConnectionChecker interface {
	IsConnected() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	transport ConnectionChecker
	inbox     *service.Inbox
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(transport ConnectionChecker, inbox *service.Inbox) *HealthHandler {
	return &HealthHandler{
		transport: transport,
		inbox:     inbox,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready. Losing push delivery does not make the daemon
// unready: it keeps serving from history fetches.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.transport == nil || !h.transport.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	if h.inbox.Closed() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "inbox closed",
		})
		return
	}

	mode := "push"
	if !h.inbox.PushActive() {
		mode = "history-only"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"mode":   mode,
	})
}

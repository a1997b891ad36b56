package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/chatsync/internal/middleware"
	"github.com/capitalize-ai/chatsync/internal/service"
	"github.com/capitalize-ai/chatsync/pkg/logger"
)

// RouterConfig holds what the router needs beyond the inbox.
type RouterConfig struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Transport         ConnectionChecker
}

// NewRouter builds the HTTP API around inbox.
func NewRouter(inbox *service.Inbox, cfg RouterConfig, log *logger.Logger) http.Handler {
	healthHandler := NewHealthHandler(cfg.Transport, inbox)
	conversationHandler := NewConversationHandler(inbox, log)
	messageHandler := NewMessageHandler(inbox, log)
	streamHandler := NewStreamHandler(inbox, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret, inbox.User().UserID))

		r.Get("/events", streamHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", conversationHandler.List)

				r.Route("/{participantID}", func(r chi.Router) {
					r.Get("/", conversationHandler.Get)
					r.Delete("/", conversationHandler.Delete)

					r.Post("/history", conversationHandler.LoadHistory)
					r.Post("/read", conversationHandler.MarkRead)
					r.Delete("/read", conversationHandler.Leave)

					// Messages
					r.Get("/messages", messageHandler.List)
					r.Post("/messages", messageHandler.Send)
					r.Post("/messages/{messageID}/reactions", messageHandler.ToggleReaction)
				})
			})
		})
	})

	return r
}

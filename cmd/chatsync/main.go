// Package main is the entry point for the chat sync daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chatsync/internal/config"
	"github.com/capitalize-ai/chatsync/internal/handler"
	"github.com/capitalize-ai/chatsync/internal/model"
	natsclient "github.com/capitalize-ai/chatsync/internal/nats"
	"github.com/capitalize-ai/chatsync/internal/refresh"
	"github.com/capitalize-ai/chatsync/internal/service"
	"github.com/capitalize-ai/chatsync/internal/timestamp"
	"github.com/capitalize-ai/chatsync/pkg/logger"
	"github.com/capitalize-ai/chatsync/pkg/tracing"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load(".env")

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting chat sync daemon", zap.String("user_id", cfg.ChatUserID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chatsync", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() {
				if err := tracing.Shutdown(context.Background(), tp); err != nil {
					log.Warn("tracer shutdown failed", zap.Error(err))
				}
			}()
		}
	}

	// Connect to NATS
	natsClient, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		Name:     "chatsync-" + cfg.ChatUserID,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	// Ensure JetStream stream exists
	streamManager := natsclient.NewStreamManager(natsClient, cfg.ChatUserID, log)
	if err := streamManager.EnsureStream(ctx); err != nil {
		log.Fatal("failed to ensure stream", zap.Error(err))
	}

	user := model.UserContext{UserID: cfg.ChatUserID, DisplayName: cfg.DisplayName()}
	inbox := service.NewInbox(
		user,
		streamManager,
		streamManager,
		streamManager,
		timestamp.NewNormalizer(log),
		log,
	)
	inbox.Start(ctx)
	defer inbox.Close()

	if cfg.RefreshEnabled {
		scheduler, err := refresh.New(cfg.RefreshSchedule, inbox.RefreshLoaded, log)
		if err != nil {
			log.Fatal("invalid refresh schedule", zap.Error(err))
		}
		stopRefresh := scheduler.Start(ctx)
		defer stopRefresh()
	}

	router := handler.NewRouter(inbox, handler.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Transport:         natsClient,
	}, log)

	// WriteTimeout stays 0 by default so the event stream is not cut off.
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Closing the inbox first ends the event streams, which would otherwise
	// hold Shutdown until its deadline.
	inbox.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

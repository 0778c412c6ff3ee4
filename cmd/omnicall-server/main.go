// Package main provides the HTTP and WebSocket server for OmniCall.
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

	"github.com/jmbento/omnicall-ai/internal/app"
	"github.com/jmbento/omnicall-ai/internal/config"
)

func main() {
	config.LoadDotEnv(nil)
	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting omnicall-server",
		"port", cfg.ServerPort,
		"store", cfg.Store,
		"llm", cfg.LLMProvider,
		"embed", cfg.EmbedProvider,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	// WriteTimeout stays zero: /api/live sockets live for the whole call.
	// Handlers bound their own work with contexts.
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           a.API().Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("REST API available", "url", fmt.Sprintf("http://localhost:%s/api", cfg.ServerPort))
		logger.Info("live voice endpoint available", "url", fmt.Sprintf("ws://localhost:%s/api/live", cfg.ServerPort))

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down server...", "signal", sig)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := a.Close(ctx); err != nil {
		logger.Error("failed to close services", "error", err)
	}

	logger.Info("server stopped")
}

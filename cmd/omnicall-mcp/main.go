// Package main provides the entry point for the OmniCall MCP server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmbento/omnicall-ai/internal/app"
	"github.com/jmbento/omnicall-ai/internal/cartridge"
	"github.com/jmbento/omnicall-ai/internal/config"
	"github.com/jmbento/omnicall-ai/internal/server"
)

const version = "0.1.0"

func main() {
	cartridgeID := flag.String("cartridge", cartridge.DefaultID, "cartridge whose documents and tools are exposed")
	flag.Parse()

	config.LoadDotEnv(nil)
	cfg := config.Load()

	// stdout carries the protocol, so logs only go to stderr and the file.
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	logger.Info("omnicall-mcp starting",
		"version", version,
		"cartridge", *cartridgeID,
		"store", cfg.Store,
		"embed_model", cfg.EmbedModel,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("failed to close services", "error", err)
		}
	}()

	deps, err := a.MCPDependencies(*cartridgeID)
	if err != nil {
		logger.Error("failed to build tools", "cartridge", *cartridgeID, "error", err)
		os.Exit(1)
	}

	srv := server.New(version, logger)
	srv.Setup(deps)
	logger.Info("server ready, awaiting connections")

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// Package cli provides the omnicall command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmbento/omnicall-ai/internal/app"
	"github.com/jmbento/omnicall-ai/internal/cartridge"
	"github.com/jmbento/omnicall-ai/internal/client"
	"github.com/jmbento/omnicall-ai/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string
	userID    string

	cfg         config.Config
	logger      *slog.Logger
	closeLogger func() error
	apiClient   *client.Client

	// localApp is built on first use by commands that work without a server.
	localApp *app.App
)

var rootCmd = &cobra.Command{
	Use:   "omnicall",
	Short: "Multi-vertical AI customer service",
	Long: `OmniCall answers customers by voice, chat and WhatsApp with a persona and
tool set chosen per vertical (a cartridge), grounded in documents you ingest.

Commands that only read or write documents run against the configured store
directly; the others talk to a running omnicall-server.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		config.LoadDotEnv(nil)
		cfg = config.Load()
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLogger = config.SetupLogger(cfg.LogFile, level)

		endpoint := serverURL
		if endpoint == "" {
			endpoint = cfg.ServerURL
		}
		apiClient = client.New(endpoint)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if localApp != nil {
			if err := localApp.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
			}
		}
		if closeLogger != nil {
			_ = closeLogger()
		}
	},
}

// getApp connects the configured store and model backends once.
func getApp(ctx context.Context) (*app.App, error) {
	if localApp != nil {
		return localApp, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init services: %w", err)
	}
	localApp = a
	return a, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $OMNICALL_SERVER_URL)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", defaultUser(), "user id for credits and sessions")
}

func defaultUser() string {
	if u := os.Getenv("OMNICALL_USER"); u != "" {
		return u
	}
	return "cli"
}

// addCartridgeFlag registers --cartridge on cmd.
func addCartridgeFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "cartridge", "c", cartridge.DefaultID, "cartridge id")
}

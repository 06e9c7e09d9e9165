package main

import (
	"context"
	"fmt"
	"os"

	"github.com/artpar/apicore/bootstrap"
	"github.com/artpar/apicore/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apicore",
	Short: "Runtime API management core",
	Long: `apicore keeps a registry of named API endpoints and executes calls
against them with caching, retries, mock data, field shaping and
variable substitution.

Quick start:
  apicore serve              # Start the HTTP API
  apicore call users         # Call an endpoint once

Management:
  apicore endpoints          # List registered endpoints
  apicore test users         # Diagnose an endpoint
  apicore validate           # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "apicore.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

// openApp builds a hydrated application for one-shot commands. Logs go to
// stderr so command output stays parseable.
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	cfg.Logging.Format = "console"
	cfg.Logging.Level = "warn"
	if verbose {
		cfg.Logging.Level = "debug"
	}

	a, err := bootstrap.New(cfg, bootstrap.Options{Version: version})
	if err != nil {
		return nil, fmt.Errorf("error initializing: %w", err)
	}
	if err := a.Hydrate(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("continuing with seeded endpoints only")
	}
	return a, nil
}

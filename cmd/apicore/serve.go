package main

import (
	"fmt"
	"os"

	"github.com/artpar/apicore/bootstrap"
	"github.com/artpar/apicore/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the apicore HTTP API.

The server will:
  - Load configuration from apicore.yaml (or --config)
  - Or load configuration from APICORE_* environment variables
  - Hydrate endpoint definitions from the remote store or local cache
  - Register the endpoints and variables seeded in the config
  - Serve /v1 calls, endpoint, field and variable management

Environment variables (for Docker deployments):
  APICORE_REMOTE_URL        - Remote endpoint store URL
  APICORE_TRANSPORT_URL     - Base URL of the default transport
  APICORE_DATABASE_DSN      - sqlite path (default: apicore.db)
  APICORE_CACHE_BACKEND     - memory or redis
  APICORE_SERVER_PORT       - Server port (default: 8080)
  APICORE_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  apicore serve
  apicore serve --config /etc/apicore/config.yaml
  apicore serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload configuration on file change or SIGHUP")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	var app *bootstrap.App
	var err error
	opts := bootstrap.Options{Version: version}

	if hasConfigFile && hotReload {
		holder, herr := config.NewHolder(cfgFile, bootstrap.SetupLogger(config.LoggingConfig{}))
		if herr != nil {
			return fmt.Errorf("error loading config: %w", herr)
		}
		app, err = bootstrap.NewFromHolder(holder, opts)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}
		if !hasConfigFile {
			fmt.Fprintln(os.Stderr, "Running with environment variables (no config file)")
		}
		app, err = bootstrap.New(cfg, opts)
	}
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}

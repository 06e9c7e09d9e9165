package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/artpar/apicore/adapters/sqlite"
	"github.com/artpar/apicore/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the apicore configuration file.

Checks:
  - YAML syntax is valid
  - Endpoint and variable seeds decode and validate
  - Transport base URLs are reachable (optional)
  - Database is writable (optional)

Examples:
  apicore validate
  apicore validate --config /etc/apicore/config.yaml --check-database`,
	RunE: runValidate,
}

var (
	validateCheckTransports bool
	validateCheckDatabase   bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckTransports, "check-transports", false, "check if transport base URLs are reachable")
	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config valid\n", checkMark)

	seeds, err := cfg.EndpointSeeds()
	if err != nil {
		fmt.Printf("  %s Endpoint seeds\n", crossMark)
		return fmt.Errorf("endpoint seeds: %w", err)
	}
	vars, err := cfg.VariableSeeds()
	if err != nil {
		fmt.Printf("  %s Variable seeds\n", crossMark)
		return fmt.Errorf("variable seeds: %w", err)
	}

	remote := cfg.Remote.URL
	if remote == "" {
		remote = "(none, local cache only)"
	}
	nvars := 0
	for _, m := range vars {
		nvars += len(m)
	}

	fmt.Printf("  %s Remote store: %s\n", checkMark, remote)
	fmt.Printf("  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Printf("  %s Response cache: %s\n", checkMark, cfg.Cache.Backend)
	fmt.Printf("  %s Transports: %d\n", checkMark, len(cfg.Transports))
	fmt.Printf("  %s Endpoint seeds: %d\n", checkMark, len(seeds))
	fmt.Printf("  %s Variable seeds: %d\n", checkMark, nvars)

	if validateCheckTransports {
		names := make([]string, 0, len(cfg.Transports))
		for name := range cfg.Transports {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			url := cfg.Transports[name].BaseURL
			if url == "" {
				continue
			}
			if err := checkReachable(url); err != nil {
				fmt.Printf("  %s Transport %s reachable\n", crossMark, name)
				fmt.Printf("      Error: %v\n", err)
			} else {
				fmt.Printf("  %s Transport %s reachable\n", checkMark, name)
			}
		}
	}

	if validateCheckDatabase && cfg.Database.Driver == "sqlite" {
		if err := checkDatabaseWritable(cfg.Database.DSN); err != nil {
			fmt.Printf("  %s Database writable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Database writable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkReachable(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.Migrate(ctx)
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

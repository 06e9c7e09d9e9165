package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/artpar/apicore/domain/call"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	callParams  string
	callTimeout time.Duration
	callRetries int
	callMock    bool
	callNoCache bool
)

var callCmd = &cobra.Command{
	Use:   "call <endpoint>",
	Short: "Call a registered endpoint once",
	Long: `Call a registered endpoint and print the response envelope as JSON.

Variables in params are substituted before the call. Policy flags override
the endpoint's own timeout and retry settings for this call only.

Examples:
  apicore call users
  apicore call users --params '{"page": 2}'
  apicore call users --mock`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

var testCmd = &cobra.Command{
	Use:   "test <endpoint>",
	Short: "Run a diagnostic call against an endpoint",
	Long: `Run a single diagnostic call that bypasses the cache and mock data.

The report includes the upstream status and response time. A failing
upstream is reported, not returned as an error.

Examples:
  apicore test users
  apicore test users --params '{"id": 7}'`,
	Args: cobra.ExactArgs(1),
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(testCmd)

	for _, c := range []*cobra.Command{callCmd, testCmd} {
		c.Flags().StringVarP(&callParams, "params", "p", "", "call params as a JSON object")
	}
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "override the endpoint timeout")
	callCmd.Flags().IntVar(&callRetries, "retries", -1, "override the endpoint retry count")
	callCmd.Flags().BoolVar(&callMock, "mock", false, "return mock data instead of calling upstream")
	callCmd.Flags().BoolVar(&callNoCache, "no-cache", false, "skip the response cache")
}

func runCall(cmd *cobra.Command, args []string) error {
	params, err := parseParams(callParams)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	hide := false
	opts := call.Options{UseMock: callMock, ShowError: &hide}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout = &callTimeout
	}
	if callRetries >= 0 {
		opts.Retries = &callRetries
	}
	if callNoCache {
		zero := time.Duration(0)
		opts.CacheTime = &zero
	}

	env, callErr := a.Manager.Call(ctx, args[0], params, opts)
	if err := printJSON(env); err != nil {
		return err
	}
	return callErr
}

func runTest(cmd *cobra.Command, args []string) error {
	params, err := parseParams(callParams)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	diag := a.Manager.Test(ctx, args[0], params)
	if err := printJSON(diag); err != nil {
		return err
	}
	if !diag.Success {
		return fmt.Errorf("endpoint %s failed: %s", args[0], diag.Error)
	}
	return nil
}

func parseParams(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("invalid --params: %w", err)
	}
	return params, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

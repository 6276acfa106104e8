// Package main provides nasagw-cli, a command-line tool for checking gateway
// configuration and querying NASA through an in-process gateway.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	nasagateway "github.com/ferro-labs/nasa-gateway"
	"github.com/ferro-labs/nasa-gateway/internal/governor"
	"github.com/ferro-labs/nasa-gateway/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "nasagw-cli",
		Short:         "nasagw command line tool",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("GATEWAY_CONFIG"),
		"gateway config file (JSON/YAML); defaults to $GATEWAY_CONFIG")

	gateway := func() (*nasagateway.Gateway, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		return nasagateway.New(*cfg)
	}

	root.AddCommand(
		newValidateCmd(),
		newVersionCmd(),
		newBudgetCmd(&configPath),
		newAPODCmd(gateway),
		newNeoCmd(gateway),
		newMissionsCmd(gateway),
	)
	return root
}

// loadConfig reads path when set, falls back to defaults otherwise, and
// applies NASA_API_KEY.
func loadConfig(path string) (*nasagateway.Config, error) {
	cfg := nasagateway.DefaultConfig()
	if path != "" {
		loaded, err := nasagateway.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if key := os.Getenv("NASA_API_KEY"); key != "" {
		cfg.Upstream.APIKey = key
	}
	if err := nasagateway.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a gateway configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := nasagateway.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := nasagateway.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Config is valid")
			printBudget(out, cfg)
			breaker := "disabled"
			if cfg.CircuitBreaker.Enabled() {
				breaker = fmt.Sprintf("%d failures, %s cooldown", cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.Timeout)
			}
			fmt.Fprintf(out, "  Breaker:   %s\n", breaker)
			requestLog := "disabled"
			if cfg.RequestLog.Driver != "" {
				requestLog = cfg.RequestLog.Driver
			}
			fmt.Fprintf(out, "  Logs:      %s\n", requestLog)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nasagw-cli %s\n", version.String())
		},
	}
}

func newBudgetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "budget",
		Short: "Show the upstream request budget and cache settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			printBudget(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printBudget(out io.Writer, cfg *nasagateway.Config) {
	g := cfg.Governor
	limit := g.MaxRequests
	if limit == 0 {
		limit = governor.DefaultMaxRequests
	}
	window := governor.DefaultRateWindow
	if g.RateWindow > 0 {
		window = g.RateWindow.Std()
	}
	ttl := governor.DefaultCacheExpiration
	if g.CacheExpiration != nil {
		ttl = g.CacheExpiration.Std()
	}
	fmt.Fprintf(out, "  Budget:    %d requests per %s\n", limit, window)
	fmt.Fprintf(out, "  Cache TTL: %s\n", ttl)
}

func newAPODCmd(gateway func() (*nasagateway.Gateway, error)) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "apod",
		Short: "Fetch the Astronomy Picture of the Day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := gateway()
			if err != nil {
				return err
			}
			defer func() { _ = gw.Close() }()
			apod, err := gw.APOD(cmd.Context(), date)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), apod)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "picture date (YYYY-MM-DD); defaults to today")
	return cmd
}

func newNeoCmd(gateway func() (*nasagateway.Gateway, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "neo <id>",
		Short: "Look up a near-Earth object by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := gateway()
			if err != nil {
				return err
			}
			defer func() { _ = gw.Close() }()
			neo, err := gw.NeoByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), neo)
		},
	}
}

func newMissionsCmd(gateway func() (*nasagateway.Gateway, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "missions",
		Short: "List missions, newest launch first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gw, err := gateway()
			if err != nil {
				return err
			}
			defer func() { _ = gw.Close() }()
			all, err := gw.Missions(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range all {
				fmt.Fprintf(out, "%-28s %-10s %s\n", m.ID, m.Status, m.LaunchDate)
			}
			return nil
		},
	}
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

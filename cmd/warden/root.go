package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - admission control and rate limiting service",
	Long: `Warden is an admission-control service for request rate limiting.

It tracks per-identity request allowances with three interchangeable
algorithms:
  - Token bucket (continuous refill, burst-friendly)
  - Sliding window (exact rolling-window counting)
  - Fixed-window quota (periodic allowances)

The admin HTTP API exposes admission checks, per-identity limit overrides,
manual refill and reset, traffic analytics, and Prometheus metrics.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

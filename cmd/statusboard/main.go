// Package main is the entry point for the statusboard CLI.
//
// Usage:
//
//	statusboard serve -c config.yaml    # Start polling and serve the API
//	statusboard validate -c config.yaml # Validate configuration
//	statusboard version                 # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var logLevel string

// rootCmd only shows help; functionality lives in subcommands.
var rootCmd = &cobra.Command{
	Use:   "statusboard",
	Short: "Health monitoring for databases, caches, load balancers and HTTP services",
	Long: `Statusboard polls heterogeneous backends on per-metric schedules and
rolls their health up into a single status API.

Quick start:
  1. Create a config file (statusboard.yaml)
  2. Run: statusboard serve -c statusboard.yaml
  3. curl http://localhost:8080/api/nodes

Example config:
  port: 8080
  tick_interval: 2s
  redis:
    - key: cache-1
      addr: localhost:6379
  http:
    - name: GitHub
      url: https://www.githubstatus.com/api/v2/status.json
      extractor: json:status.indicator`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "statusboard %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger on stderr at the --log-level level.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}

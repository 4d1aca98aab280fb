package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statusboard/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a statusboard configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. No backend is contacted.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  statusboard validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	haproxy := 0
	for _, g := range cfg.HAProxy {
		haproxy += len(g.Instances)
	}
	grid := cfg.NodeCount() - len(cfg.SQL) - len(cfg.Redis) - haproxy - len(cfg.Elastic) - len(cfg.HTTP)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Tick interval: %s\n", cfg.TickInterval.Duration())
	fmt.Fprintf(out, "  SQL:           %d\n", len(cfg.SQL))
	fmt.Fprintf(out, "  Redis:         %d\n", len(cfg.Redis))
	fmt.Fprintf(out, "  HAProxy:       %d in %d groups\n", haproxy, len(cfg.HAProxy))
	fmt.Fprintf(out, "  Elastic:       %d\n", len(cfg.Elastic))
	fmt.Fprintf(out, "  HTTP:          %d direct + %d from grids\n", len(cfg.HTTP), grid)
	fmt.Fprintf(out, "  Total nodes:   %d\n", cfg.NodeCount())
	if cfg.NATS.URL != "" {
		fmt.Fprintf(out, "  NATS:          %s (prefix %s)\n", cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	}
	return nil
}

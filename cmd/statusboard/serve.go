package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statusboard"
	"github.com/jpalmerr/statusboard/config"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start polling and serve the status API",
	Long: `Start statusboard.

The server will:
  - Load configuration from the specified YAML file
  - Poll every configured node on its own schedule
  - Serve the status API and Prometheus metrics on the configured port
  - Publish status transitions to NATS when configured

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  statusboard serve -c config.yaml
  statusboard serve --config /etc/statusboard/config.yaml --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"sql", len(cfg.SQL),
		"redis", len(cfg.Redis),
		"haproxy_groups", len(cfg.HAProxy),
		"elastic", len(cfg.Elastic),
		"http", len(cfg.HTTP),
		"grids", len(cfg.Grids),
		"nodes", cfg.NodeCount(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nodes, err := config.BuildNodes(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build nodes: %w", err)
	}
	defer config.CloseNodes(nodes)

	opts := append(config.ServiceOptions(cfg, logger), statusboard.WithNodes(nodes...))
	svc, err := statusboard.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create statusboard: %w", err)
	}

	logger.Info("starting server",
		"port", cfg.Port,
		"tick_interval", cfg.TickInterval.Duration().String(),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- svc.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

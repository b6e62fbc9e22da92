package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"warden-hq/warden/pkg/admission"
	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/history"
	"warden-hq/warden/pkg/server"
	"warden-hq/warden/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Warden admission server",
	Long: `Start the Warden admission server with the specified configuration.

The server listens on the configured address and exposes the admission API:
admission checks, per-identity limit overrides, manual refill/reset, traffic
analytics, and Prometheus metrics.

Examples:
  # Start with default config
  warden run

  # Start with custom config
  warden run --config /etc/warden/config.yaml

  # Override listen address
  warden run --listen 0.0.0.0:8181

  # Reload default limits when the config file changes
  warden run --watch`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "reload default limits on config file changes")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics registry
	registry := prometheus.NewRegistry()
	var metrics *admission.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		metrics = admission.NewMetrics(registry)
	}

	// Decision history archive
	var (
		histBackend history.Backend
		archive     *history.Archive
	)
	if cfg.History.Enabled {
		switch cfg.History.Backend {
		case "sqlite":
			histBackend, err = history.NewSQLiteBackend(cfg.History.SQLitePath)
			if err != nil {
				return fmt.Errorf("failed to open history database: %w", err)
			}
		default:
			histBackend = history.NewMemoryBackend(cfg.History.MaxEvents)
		}

		archive = history.NewArchive(histBackend, cfg.History.BufferSize, logger)
		defer func() {
			if err := archive.Close(); err != nil {
				logger.Error("failed to close history archive", "error", err)
			}
		}()

		logger.Info("decision history enabled", "backend", cfg.History.Backend)
	}

	// Admission core
	limiterOpts := admission.Options{
		Defaults: admission.Defaults{
			TokenBucket:   cfg.Limits.TokenBucket,
			SlidingWindow: cfg.Limits.SlidingWindow,
			Quota:         cfg.Limits.Quota,
		},
		Logger:     logger,
		Metrics:    metrics,
		MaxIdle:    cfg.Limits.MaxIdle,
		MaxEntries: cfg.Limits.MaxEntries,
	}
	if archive != nil {
		limiterOpts.Recorder = archive
	}

	limiter, err := admission.New(limiterOpts)
	if err != nil {
		return fmt.Errorf("failed to create limiter: %w", err)
	}

	// Idle-state eviction
	sweeper := admission.NewSweeper(limiter, logger)
	if err := sweeper.Start(ctx, cfg.Limits.SweepSchedule); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	defer sweeper.Stop()

	// Config hot reload of default limits
	if runFlags.watch {
		watcher, err := config.NewWatcher(cfgFile, 0, logger)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		go func() {
			err := watcher.Watch(ctx, func(next *config.Config) {
				applyDefaultLimits(limiter, next, logger)
			})
			if err != nil {
				logger.Error("config watcher failed", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	// Admin HTTP server
	srv, err := server.NewServer(server.Options{
		Config:   &cfg.Server,
		Limiter:  limiter,
		History:  histBackend,
		Registry: registry,
		Metrics:  &cfg.Telemetry.Metrics,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("warden starting",
		"version", Version,
		"address", cfg.Server.ListenAddress,
		"history_enabled", cfg.History.Enabled,
	)

	// Blocks until signal, context cancellation, or listener failure.
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("warden stopped")
	return nil
}

// applyDefaultLimits installs reloaded default limits into a running limiter.
// Identities with live state keep their old defaults until reset or evicted.
func applyDefaultLimits(limiter *admission.Limiter, cfg *config.Config, logger *slog.Logger) {
	updates := map[admission.Algorithm]admission.Config{
		admission.AlgorithmTokenBucket:   cfg.Limits.TokenBucket,
		admission.AlgorithmSlidingWindow: cfg.Limits.SlidingWindow,
		admission.AlgorithmQuota:         cfg.Limits.Quota,
	}
	for algo, c := range updates {
		if err := limiter.SetDefaults(algo, c); err != nil {
			logger.Error("failed to apply reloaded limits", "algorithm", string(algo), "error", err)
		}
	}
	logger.Info("default limits reloaded")
}

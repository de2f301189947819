package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"clinic-sync/internal/config"
	"clinic-sync/internal/feegow"
	"clinic-sync/internal/logging"
	"clinic-sync/internal/metrics"
	"clinic-sync/internal/reconcile"
	"clinic-sync/internal/repo"
	"clinic-sync/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.AppEnv)
	metricRegistry := metrics.Registry(cfg.MetricsNamespace)
	ctx := context.Background()

	store, err := repo.Open(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	feegowClient := feegow.New(feegow.Config{
		BaseURL:     cfg.FeegowBaseURL,
		AccessToken: cfg.FeegowAccessToken,
		Timeout:     cfg.FeegowTimeout,
	}, logger, metricRegistry)

	reconciler := reconcile.New(feegowClient, store, metricRegistry, logger)
	summary, err := reconciler.Run(ctx, cfg.FeegowWindowPast, cfg.FeegowWindowFuture)
	if err != nil {
		// Fetch failures are reported but the exit stays best-effort.
		logger.Error("financial reconciliation failed", "error", err)
		return nil
	}
	fmt.Printf("reconciled %d records (%d skipped, %d errored)\n", summary.Saved, summary.Skipped, summary.Errored)
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"clinic-sync/internal/cache"
	"clinic-sync/internal/chatsync"
	"clinic-sync/internal/clinia"
	"clinic-sync/internal/config"
	"clinic-sync/internal/logging"
	"clinic-sync/internal/metrics"
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

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	cliniaClient := clinia.New(clinia.Config{
		BaseURL:       cfg.CliniaBaseURL,
		APIKey:        cfg.CliniaAPIKey,
		SessionCookie: cfg.CliniaSessionCookie,
		Timeout:       cfg.CliniaTimeout,
	}, logger, metricRegistry)

	syncer := chatsync.New(cliniaClient, store, redisClient, metricRegistry, logger)
	if err := syncer.Run(ctx); err != nil {
		// Persistence failures are reported but the exit stays best-effort.
		logger.Error("chat synchronization failed", "error", err)
	}
	return nil
}

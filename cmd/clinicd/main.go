package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"clinic-sync/internal/audit"
	"clinic-sync/internal/cache"
	"clinic-sync/internal/chatsync"
	"clinic-sync/internal/clinia"
	"clinic-sync/internal/config"
	"clinic-sync/internal/feegow"
	"clinic-sync/internal/httpserver"
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
	logger.Info("starting clinicd", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	store, err := repo.Open(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated", "postgres", cfg.UsesPostgres())

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	if redisClient != nil {
		defer redisClient.Close()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
	}

	cliniaClient := clinia.New(clinia.Config{
		BaseURL:       cfg.CliniaBaseURL,
		APIKey:        cfg.CliniaAPIKey,
		SessionCookie: cfg.CliniaSessionCookie,
		Timeout:       cfg.CliniaTimeout,
	}, logger, metricRegistry)

	feegowClient := feegow.New(feegow.Config{
		BaseURL:     cfg.FeegowBaseURL,
		AccessToken: cfg.FeegowAccessToken,
		Timeout:     cfg.FeegowTimeout,
	}, logger, metricRegistry)

	auditor := audit.New(cliniaClient, redisClient, metricRegistry, logger, cfg.QueueResultTTL)
	syncer := chatsync.New(cliniaClient, store, redisClient, metricRegistry, logger)
	reconciler := reconcile.New(feegowClient, store, metricRegistry, logger)

	go every(ctx, cfg.AuditInterval, func() {
		if _, err := auditor.Run(ctx); err != nil {
			logger.Error("queue audit failed", "error", err)
		}
	})
	go every(ctx, cfg.ChatSyncInterval, func() {
		if err := syncer.Run(ctx); err != nil {
			logger.Error("chat synchronization failed", "error", err)
		}
	})
	go every(ctx, cfg.ReconcileInterval, func() {
		if _, err := reconciler.Run(ctx, cfg.FeegowWindowPast, cfg.FeegowWindowFuture); err != nil {
			logger.Error("financial reconciliation failed", "error", err)
		}
	})

	httpSrv := httpserver.New(cfg.HTTPListenAddr, store, redisClient, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	return nil
}

// every runs fn immediately and then on each tick until ctx is cancelled.
// Runs within one pipeline are serial; the pipelines themselves operate on
// independent tables and need no coordination.
func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	fn()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

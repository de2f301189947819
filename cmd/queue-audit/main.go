package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"clinic-sync/internal/audit"
	"clinic-sync/internal/cache"
	"clinic-sync/internal/clinia"
	"clinic-sync/internal/config"
	"clinic-sync/internal/logging"
	"clinic-sync/internal/metrics"
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

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	if redisClient != nil {
		defer redisClient.Close()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed, audit result will not be published", "error", err)
		}
	}

	cliniaClient := clinia.New(clinia.Config{
		BaseURL:       cfg.CliniaBaseURL,
		APIKey:        cfg.CliniaAPIKey,
		SessionCookie: cfg.CliniaSessionCookie,
		Timeout:       cfg.CliniaTimeout,
	}, logger, metricRegistry)

	auditor := audit.New(cliniaClient, redisClient, metricRegistry, logger, cfg.QueueResultTTL)

	// Failures inside the run are best-effort and already logged; only a
	// startup error exits non-zero.
	result, _ := auditor.Run(ctx)
	fmt.Printf("confirmed queue: %d chats, average wait %.1f minutes\n", result.Confirmed, result.AvgWaitMinutes)
	return nil
}

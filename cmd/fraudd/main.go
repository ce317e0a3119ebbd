package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/cache"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/telemetry"
	"github.com/marketshield/fraud-detection-engine/internal/metrics"
	"github.com/marketshield/fraud-detection-engine/internal/service/detection"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	store := buildStore(cfg, logger)
	defer store.Close() //nolint:errcheck

	registry := metrics.NewRegistry(prometheus.DefaultRegisterer)

	svc, err := detection.NewService(cfg.Detection, store, registry, logger.Named("detection"))
	if err != nil {
		logger.Fatal("failed to build detection service", zap.Error(err))
	}

	server := newServer(cfg, svc, logger.Named("http"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fraud detection engine listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Environment),
			zap.String("version", cfg.Version))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildStore assembles the velocity counter store: memory only, or Redis
// with a memory fallback so a Redis outage degrades instead of failing.
func buildStore(cfg *config.Config, logger *zap.Logger) cache.Store {
	memory := cache.NewMemoryStore()
	if !cfg.Redis.Enabled {
		return memory
	}
	redis, err := cache.NewRedisStore(&cfg.Redis, logger.Named("redis"))
	if err != nil {
		logger.Warn("redis unavailable, using in-memory store", zap.Error(err))
		return memory
	}
	return cache.NewFallbackStore(redis, memory, logger.Named("store"))
}

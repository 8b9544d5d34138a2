package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"storefront-backend/internal/config"
	"storefront-backend/internal/database"
	"storefront-backend/internal/effect"
	"storefront-backend/internal/observability"
	"storefront-backend/internal/repository"
	"storefront-backend/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	runtime, err := observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
	if err != nil {
		return err
	}
	logger := observability.InitLogger(cfg, runtime.LoggerProvider)

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	observability.InstrumentRedisClient(client, logger)

	wallets := service.NewWalletService(repository.NewWalletRepository(db), logger)
	notifier := service.NewLogNotifier(logger)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	runner := effect.NewRunner(client, cfg.EffectStream, cfg.EffectConsumerGroup, hostname, cfg.EffectMaxAttempts, logger)
	service.RegisterEffectHandlers(runner, wallets, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("effect worker starting",
			"stream", cfg.EffectStream, "group", cfg.EffectConsumerGroup, "consumer", hostname)
		return runner.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("effect worker stopped", "error", err)
	} else {
		logger.Info("effect worker stopped")
		err = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if rErr := runtime.Shutdown(shutdownCtx); rErr != nil {
		logger.Error("failed to shutdown observability", "error", rErr)
	}
	if cErr := client.Close(); cErr != nil {
		logger.Error("failed to close redis client", "error", cErr)
	}
	if sqlDB, dErr := db.DB(); dErr == nil {
		_ = sqlDB.Close()
	}
	return err
}

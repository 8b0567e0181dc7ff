package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"escrow_engine/internal/config"
	"escrow_engine/internal/db"
	"escrow_engine/internal/engine"
	"escrow_engine/internal/logger"
	"escrow_engine/internal/repository"

	redis "github.com/redis/go-redis/v9"
)

// Standalone outbox publisher for deployments that run delivery separately
// from the API. Delivery is at-least-once when more than one publisher
// polls the same table; consumers must dedupe on event id.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	var delivery engine.Delivery = engine.LogDelivery{}
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unavailable, falling back to log delivery", "error", err)
	} else {
		delivery = engine.NewRedisStreamDelivery(redisClient, cfg.OutboxStream)
	}

	publisher := engine.NewPublisher(
		repository.NewOutboxRepository(dbPool),
		delivery,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	publisher.Run(ctx)
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrow_engine/internal/auth"
	"escrow_engine/internal/bot"
	"escrow_engine/internal/config"
	"escrow_engine/internal/db"
	"escrow_engine/internal/engine"
	httpServer "escrow_engine/internal/http"
	"escrow_engine/internal/http/middleware"
	"escrow_engine/internal/ledger"
	"escrow_engine/internal/logger"
	"escrow_engine/internal/provider"
	"escrow_engine/internal/repository"
	"escrow_engine/internal/state"
	"escrow_engine/internal/ws"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	auth.Init(cfg.JWTSecret, cfg.AdminTelegramIDs)

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	var locks engine.Locker
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, using in-process locks", "error", err)
		locks = engine.NewMemoryLocker()
		redisClient = nil
	} else {
		locks = engine.NewRedisLocker(redisClient, cfg.LockTTL)
	}
	cancel()

	providers := provider.NewRegistry()
	if cfg.PaymentAPIURL != "" {
		providers.RegisterPayment(provider.NewHTTPPayment("rail", cfg.PaymentAPIURL, cfg.PaymentAPIKey))
	}
	providers.RegisterRates(provider.NewMemoryRates(nil))
	if cfg.BotToken != "" {
		notifier, err := provider.NewTelegramNotifier(cfg.BotToken)
		if err != nil {
			logger.Warn("telegram notifier disabled", "error", err)
		} else {
			providers.RegisterNotifier(notifier)
		}
	}

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Close()

	store := repository.NewEngineStore(dbPool)
	outboxRepo := repository.NewOutboxRepository(dbPool)
	eng, err := engine.New(engine.Config{
		Store:        store,
		Outbox:       outboxRepo,
		Inbox:        repository.NewInboxRepository(dbPool),
		Sagas:        repository.NewSagaRepository(dbPool),
		States:       state.NewService(),
		Providers:    providers,
		Ledger:       ledger.New(dbPool),
		Locks:        locks,
		Sink:         hub,
		EscrowExpiry: cfg.EscrowExpiry,
	})
	if err != nil {
		logger.Fatal("failed to build engine", "error", err)
	}

	// outbox publisher runs in-process; the standalone binary exists for
	// deployments that want it isolated
	var delivery engine.Delivery = engine.LogDelivery{}
	if redisClient != nil {
		delivery = engine.NewRedisStreamDelivery(redisClient, cfg.OutboxStream)
	}
	publisher := engine.NewPublisher(outboxRepo, delivery, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	pubCtx, pubCancel := context.WithCancel(context.Background())
	go publisher.Run(pubCtx)

	if cfg.BotToken != "" && len(cfg.AdminTelegramIDs) > 0 {
		adminBot, err := bot.NewAdminBot(cfg.BotToken, eng, cfg.AdminTelegramIDs)
		if err != nil {
			logger.Warn("admin bot disabled", "error", err)
		} else {
			go adminBot.Start()
			defer adminBot.Stop()
		}
	}

	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, 0)

	r := gin.Default()
	httpServer.RegisterRoutes(r, eng, dbPool, redisClient, hub, cfg.BotToken, version)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	pubCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	// let in-flight transaction processing finish
	eng.Wait()
	logger.Info("server exited")
}

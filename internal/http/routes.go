package http

import (
	"os"
	"strconv"
	"time"

	"escrow_engine/internal/http/handlers"
	"escrow_engine/internal/http/middleware"
	"escrow_engine/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
)

// RegisterRoutes wires the full HTTP surface: transaction API, provider
// webhooks, admin operations, the event websocket and the probes.
func RegisterRoutes(r *gin.Engine, eng handlers.TransactionEngine, db *pgxpool.Pool,
	redisClient *redis.Client, hub *ws.Hub, botToken, version string) {

	h := handlers.NewHandler(eng, botToken)
	healthHandler := handlers.NewHealthHandler(db, redisClient, version)

	// read limits from env, with safe defaults
	apiRateLimit := 60
	if v := os.Getenv("API_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateLimit = n
		}
	}
	apiRateWindow := time.Minute
	if v := os.Getenv("API_RATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiRateWindow = time.Duration(n) * time.Second
		}
	}

	authRateLimit := 5
	if v := os.Getenv("AUTH_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			authRateLimit = n
		}
	}

	// Health checks and metrics (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(apiRateLimit, apiRateWindow))

	// Auth
	v1.POST("/auth/telegram", middleware.RedisRateLimit(authRateLimit, time.Minute), h.Auth)

	// Transactions
	txns := v1.Group("/transactions")
	txns.Use(middleware.JWT())
	{
		txns.POST("", h.CreateTransaction)
		txns.GET("", h.ListTransactions)
		txns.GET("/:id", h.GetTransaction)
		txns.GET("/:id/history", h.GetTransactionHistory)
		txns.POST("/:id/cancel", h.CancelTransaction)
		txns.POST("/:id/retry", h.RetryTransaction)
	}

	// Provider webhooks: authenticated by signature, not JWT
	v1.POST("/webhooks/:provider", h.ProviderWebhook)

	// Admin operations
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminJWT())
	{
		admin.GET("/transactions/:id", h.AdminGetTransaction)
		admin.POST("/transactions/:id/force-status", h.ForceStatus)
	}

	// Live engine event stream
	r.GET("/ws/events", middleware.JWT(), ws.Handler(hub))
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"escrow_engine/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort          string
	DatabaseURL      string
	RedisAddr        string
	RedisPassword    string
	JWTSecret        string
	BotToken         string
	AdminTelegramIDs []int64

	// Payment rail
	PaymentAPIURL string
	PaymentAPIKey string

	// Outbox publisher
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxStream       string

	// Engine
	LockTTL      time.Duration
	EscrowExpiry time.Duration

	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment, with .env as a fallback
// for local development. Missing required values are fatal at startup.
func Load() *Config {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	var adminIDs []int64
	if s := os.Getenv("ADMIN_TELEGRAM_IDS"); s != "" {
		for _, idStr := range strings.Split(s, ",") {
			idStr = strings.TrimSpace(idStr)
			if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
				adminIDs = append(adminIDs, id)
			}
		}
	}

	pollInterval := 5 * time.Second
	if v := os.Getenv("OUTBOX_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			pollInterval = d
		}
	}

	batchSize := 50
	if v := os.Getenv("OUTBOX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			batchSize = n
		}
	}

	stream := os.Getenv("OUTBOX_STREAM")
	if stream == "" {
		stream = "engine:events"
	}

	lockTTL := 30 * time.Second
	if v := os.Getenv("LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			lockTTL = d
		}
	}

	escrowExpiry := 24 * time.Hour
	if v := os.Getenv("ESCROW_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			escrowExpiry = d
		}
	}

	return &Config{
		AppPort:            port,
		DatabaseURL:        dbURL,
		RedisAddr:          redisAddr,
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		JWTSecret:          jwtSecret,
		BotToken:           os.Getenv("BOT_TOKEN"),
		AdminTelegramIDs:   adminIDs,
		PaymentAPIURL:      os.Getenv("PAYMENT_API_URL"),
		PaymentAPIKey:      os.Getenv("PAYMENT_API_KEY"),
		OutboxPollInterval: pollInterval,
		OutboxBatchSize:    batchSize,
		OutboxStream:       stream,
		LockTTL:            lockTTL,
		EscrowExpiry:       escrowExpiry,
		LogLevel:           os.Getenv("LOG_LEVEL"),
		LogJSON:            os.Getenv("LOG_JSON") == "true",
	}
}

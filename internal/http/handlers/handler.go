package handlers

import (
	"context"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/engine"
)

// TransactionEngine is the handler's view of the engine. An interface so
// handler tests can run against a fake.
type TransactionEngine interface {
	CreateTransaction(ctx context.Context, req *domain.CreateTransactionRequest) (*domain.TransactionResult, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetStatusHistory(ctx context.Context, id string) ([]*domain.StatusHistoryEntry, error)
	ListTransactionsByUser(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error)
	CancelTransaction(ctx context.Context, id, reason string) (*domain.TransactionResult, error)
	RetryTransaction(ctx context.Context, id string) (*domain.TransactionResult, error)
	ForceStatus(ctx context.Context, id string, to domain.TransactionStatus, reason, actor string) (*domain.TransactionResult, error)
	ProcessInboxWebhook(ctx context.Context, d engine.WebhookDelivery) (*domain.WebhookResult, error)
}

type Handler struct {
	Engine   TransactionEngine
	BotToken string
}

func NewHandler(eng TransactionEngine, botToken string) *Handler {
	return &Handler{Engine: eng, BotToken: botToken}
}

func getUserID(c interface{ Get(string) (any, bool) }) (int64, bool) {
	uidVal, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	switch v := uidVal.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func isAdmin(c interface{ Get(string) (any, bool) }) bool {
	v, ok := c.Get("is_admin")
	return ok && v == true
}

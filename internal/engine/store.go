package engine

import (
	"context"
	"time"

	"escrow_engine/internal/domain"

	"github.com/shopspring/decimal"
)

// Transition describes one validated status change plus the audit rows that
// must commit with it.
type Transition struct {
	TransactionID string
	From          domain.TransactionStatus
	To            domain.TransactionStatus
	Reason        string
	Metadata      map[string]interface{}
	Event         *domain.EngineEvent
	Outbox        *domain.OutboxEvent
}

// Store persists transactions and their audit trail. Implementations must
// make each method atomic: the row writes of one call either all commit or
// none do, so an outbox row never exists for a change that didn't commit.
type Store interface {
	// CreateTransaction inserts the transaction, its first history entry,
	// the creation engine event and the creation outbox row in one unit of work.
	CreateTransaction(ctx context.Context, txn *domain.Transaction,
		history *domain.StatusHistoryEntry, event *domain.EngineEvent,
		outbox *domain.OutboxEvent) error

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error)

	// ApplyTransition performs a conditional update (status must still equal
	// From) together with the history entry, engine event and optional outbox
	// row. Returns false without error when the row was concurrently moved.
	ApplyTransition(ctx context.Context, t Transition) (bool, error)

	GetStatusHistory(ctx context.Context, transactionID string) ([]*domain.StatusHistoryEntry, error)
	AppendEngineEvent(ctx context.Context, event *domain.EngineEvent) error
}

// OutboxStore is the publisher's view of the outbox table.
type OutboxStore interface {
	CreateOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error
	// GetDueEvents returns pending events whose scheduled_at is due, oldest first.
	GetDueEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	// MarkFailed records a failed delivery attempt. The store increments the
	// attempt counter and reschedules the row, flipping it to FAILED once the
	// attempt budget is spent.
	MarkFailed(ctx context.Context, id string, lastError string) error
}

// InboxStore records inbound webhooks for deduplication.
type InboxStore interface {
	// InsertWebhook inserts a RECEIVED row keyed on webhook_id. Returns false
	// when a row for this webhook_id already exists.
	InsertWebhook(ctx context.Context, w *domain.InboxWebhook) (bool, error)
	MarkProcessed(ctx context.Context, webhookID, result string) error
	MarkFailed(ctx context.Context, webhookID, errMsg string) error
	GetWebhook(ctx context.Context, webhookID string) (*domain.InboxWebhook, error)
}

// SagaStore persists saga step state.
type SagaStore interface {
	CreateSteps(ctx context.Context, steps []*domain.SagaStep) error
	UpdateStep(ctx context.Context, step *domain.SagaStep) error
	GetSteps(ctx context.Context, sagaID string) ([]*domain.SagaStep, error)
}

// Ledger is the internal wallet the saga steps move money through.
// Implementations serialize per-wallet via row locks.
type Ledger interface {
	Available(ctx context.Context, userID int64, currency string) (decimal.Decimal, error)
	Hold(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error
	ReleaseHold(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error
	ConsumeHold(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, currency, ref string) error
}

// EventSink receives every recorded engine event, e.g. for streaming to
// dashboards. Implementations must not block.
type EventSink interface {
	PublishEvent(event *domain.EngineEvent)
}

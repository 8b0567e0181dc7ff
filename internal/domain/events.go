package domain

import "time"

// StatusHistoryEntry records one status transition. Append-only.
type StatusHistoryEntry struct {
	ID            int64                  `db:"id" json:"id"`
	TransactionID string                 `db:"transaction_id" json:"transaction_id"`
	FromStatus    *TransactionStatus     `db:"from_status" json:"from_status,omitempty"` // nil for the first transition
	ToStatus      TransactionStatus      `db:"to_status" json:"to_status"`
	Reason        string                 `db:"reason" json:"reason,omitempty"`
	Metadata      map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
}

// Engine event categories
const (
	EventCategoryBusiness = "business"
	EventCategorySystem   = "system"
)

// Engine event types
const (
	EventTransactionCreated   = "transaction_created"
	EventStatusChanged        = "status_changed"
	EventStatusForced         = "status_forced"
	EventSagaInitiated        = "saga_initiated"
	EventSagaStepCompleted    = "saga_step_completed"
	EventSagaStepFailed       = "saga_step_failed"
	EventSagaCompensated      = "saga_compensated"
	EventTransactionCompleted = "transaction_completed"
	EventTransactionFailed    = "transaction_failed"
	EventWebhookReceived      = "webhook_received"
)

// EngineEvent is an immutable audit/tracing record. CorrelationID defaults
// to the transaction id so all events for one transaction can be joined.
type EngineEvent struct {
	ID            string                 `db:"id" json:"id"`
	TransactionID string                 `db:"transaction_id" json:"transaction_id"`
	SagaID        *string                `db:"saga_id" json:"saga_id,omitempty"`
	EventType     string                 `db:"event_type" json:"event_type"`
	Category      string                 `db:"category" json:"category"`
	Payload       map[string]interface{} `db:"payload" json:"payload,omitempty"`
	CorrelationID string                 `db:"correlation_id" json:"correlation_id"`
	ParentEventID *string                `db:"parent_event_id" json:"parent_event_id,omitempty"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
}

// OutboxStatus tracks outbox delivery state
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxEvent is a durably recorded side effect awaiting delivery.
// It is written in the same database transaction as the business change
// it describes and mutated only by the publisher.
type OutboxEvent struct {
	ID            string                 `db:"id" json:"id"`
	EventType     string                 `db:"event_type" json:"event_type"`
	EntityType    string                 `db:"entity_type" json:"entity_type"`
	EntityID      string                 `db:"entity_id" json:"entity_id"`
	TransactionID *string                `db:"transaction_id" json:"transaction_id,omitempty"`
	UserID        *int64                 `db:"user_id" json:"user_id,omitempty"`
	Payload       map[string]interface{} `db:"payload" json:"payload,omitempty"`
	Status        OutboxStatus           `db:"status" json:"status"`
	ScheduledAt   time.Time              `db:"scheduled_at" json:"scheduled_at"`
	Attempts      int                    `db:"attempts" json:"attempts"`
	LastError     string                 `db:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
	PublishedAt   *time.Time             `db:"published_at" json:"published_at,omitempty"`
}

// InboxStatus tracks inbound webhook processing state
type InboxStatus string

const (
	InboxReceived  InboxStatus = "received"
	InboxProcessed InboxStatus = "processed"
	InboxFailed    InboxStatus = "failed"
)

// InboxWebhook records an inbound provider webhook. The provider-supplied
// WebhookID is the dedup key; a second delivery of the same id is detected
// and short-circuited without reprocessing.
type InboxWebhook struct {
	ID          int64                  `db:"id" json:"id"`
	WebhookID   string                 `db:"webhook_id" json:"webhook_id"`
	Provider    string                 `db:"provider" json:"provider"`
	EventType   string                 `db:"event_type" json:"event_type"`
	Payload     map[string]interface{} `db:"payload" json:"payload,omitempty"`
	Headers     map[string]string      `db:"headers" json:"headers,omitempty"`
	Signature   string                 `db:"signature" json:"signature,omitempty"`
	Status      InboxStatus            `db:"status" json:"status"`
	Result      string                 `db:"result" json:"result,omitempty"`
	ErrorMsg    string                 `db:"error_msg" json:"error_msg,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time             `db:"processed_at" json:"processed_at,omitempty"`
}

// WebhookResult is returned by the inbox deduplicator
type WebhookResult struct {
	Duplicate bool   `json:"duplicate"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"escrow_engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InboxRepository records inbound webhooks keyed on the provider-supplied
// webhook id. The unique index on webhook_id is the dedup mechanism.
type InboxRepository struct {
	db *pgxpool.Pool
}

func NewInboxRepository(db *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{db: db}
}

// InsertWebhook inserts a RECEIVED row. Returns false when the webhook id
// was already recorded; the conflict does not write anything.
func (r *InboxRepository) InsertWebhook(ctx context.Context, w *domain.InboxWebhook) (bool, error) {
	payloadJSON, err := json.Marshal(w.Payload)
	if err != nil {
		payloadJSON = []byte("{}")
	}
	headersJSON, err := json.Marshal(w.Headers)
	if err != nil {
		headersJSON = []byte("{}")
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO inbox_webhooks
		   (webhook_id, provider, event_type, payload, headers, signature, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (webhook_id) DO NOTHING
		 RETURNING id`,
		w.WebhookID, w.Provider, w.EventType, payloadJSON, headersJSON,
		w.Signature, w.Status, w.CreatedAt,
	).Scan(&w.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *InboxRepository) MarkProcessed(ctx context.Context, webhookID, result string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE inbox_webhooks
		 SET status = $1, result = $2, processed_at = $3
		 WHERE webhook_id = $4`,
		domain.InboxProcessed, result, time.Now().UTC(), webhookID,
	)
	return err
}

func (r *InboxRepository) MarkFailed(ctx context.Context, webhookID, errMsg string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE inbox_webhooks
		 SET status = $1, error_msg = $2, processed_at = $3
		 WHERE webhook_id = $4`,
		domain.InboxFailed, errMsg, time.Now().UTC(), webhookID,
	)
	return err
}

func (r *InboxRepository) GetWebhook(ctx context.Context, webhookID string) (*domain.InboxWebhook, error) {
	var (
		w           domain.InboxWebhook
		payloadJSON []byte
		headersJSON []byte
		result      *string
		errorMsg    *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, webhook_id, provider, event_type, payload, headers, signature,
		        status, result, error_msg, created_at, processed_at
		 FROM inbox_webhooks
		 WHERE webhook_id = $1`,
		webhookID,
	).Scan(&w.ID, &w.WebhookID, &w.Provider, &w.EventType, &payloadJSON, &headersJSON,
		&w.Signature, &w.Status, &result, &errorMsg, &w.CreatedAt, &w.ProcessedAt)
	if err != nil {
		return nil, err
	}

	if len(payloadJSON) > 0 {
		_ = json.Unmarshal(payloadJSON, &w.Payload)
	}
	if len(headersJSON) > 0 {
		_ = json.Unmarshal(headersJSON, &w.Headers)
	}
	if result != nil {
		w.Result = *result
	}
	if errorMsg != nil {
		w.ErrorMsg = *errorMsg
	}
	return &w, nil
}

package repository

import (
	"context"
	"encoding/json"
	"time"

	"escrow_engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultOutboxMaxAttempts = 5

// OutboxRepository persists durably recorded side effects. Rows are written
// in the same unit of work as the business change and mutated only by the
// publisher.
type OutboxRepository struct {
	db          *pgxpool.Pool
	maxAttempts int
}

func NewOutboxRepository(db *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{db: db, maxAttempts: defaultOutboxMaxAttempts}
}

func (r *OutboxRepository) CreateOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.CreateWithTx(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateWithTx inserts an outbox row inside an existing unit of work
func (r *OutboxRepository) CreateWithTx(ctx context.Context, dbTx pgx.Tx, event *domain.OutboxEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		payloadJSON = []byte("{}")
	}

	_, err = dbTx.Exec(ctx,
		`INSERT INTO outbox_events
		   (id, event_type, entity_type, entity_id, transaction_id, user_id,
		    payload, status, scheduled_at, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		event.ID, event.EventType, event.EntityType, event.EntityID,
		event.TransactionID, event.UserID, payloadJSON, event.Status,
		event.ScheduledAt, event.Attempts, event.CreatedAt,
	)
	return err
}

// GetDueEvents returns pending events whose scheduled_at has passed, oldest
// first. SKIP LOCKED reduces contention between concurrent publishers;
// delivery is still at-least-once, the guarded MarkPublished keeps a racing
// publisher from double-finalizing a row.
func (r *OutboxRepository) GetDueEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, event_type, entity_type, entity_id, transaction_id, user_id,
		        payload, status, scheduled_at, attempts, last_error, created_at, published_at
		 FROM outbox_events
		 WHERE status = $1 AND scheduled_at <= now()
		 ORDER BY scheduled_at ASC
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		domain.OutboxPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.OutboxEvent
	for rows.Next() {
		var (
			event       domain.OutboxEvent
			payloadJSON []byte
			lastError   *string
		)
		if err := rows.Scan(&event.ID, &event.EventType, &event.EntityType, &event.EntityID,
			&event.TransactionID, &event.UserID, &payloadJSON, &event.Status,
			&event.ScheduledAt, &event.Attempts, &lastError,
			&event.CreatedAt, &event.PublishedAt); err != nil {
			return nil, err
		}
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &event.Payload)
		}
		if lastError != nil {
			event.LastError = *lastError
		}
		result = append(result, &event)
	}
	return result, rows.Err()
}

// MarkPublished finalizes a delivered event. PUBLISHED is terminal.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE outbox_events
		 SET status = $1, published_at = $2
		 WHERE id = $3 AND status = $4`,
		domain.OutboxPublished, publishedAt, id, domain.OutboxPending,
	)
	return err
}

// MarkFailed records a failed attempt. The row is rescheduled with a linear
// backoff until the attempt budget is spent, then flipped to FAILED.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE outbox_events
		 SET attempts = attempts + 1,
		     last_error = $1,
		     scheduled_at = now() + (attempts + 1) * interval '30 seconds',
		     status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END
		 WHERE id = $3 AND status = $4`,
		lastError, r.maxAttempts, id, domain.OutboxPending,
	)
	return err
}

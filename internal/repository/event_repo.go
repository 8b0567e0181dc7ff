package repository

import (
	"context"
	"encoding/json"

	"escrow_engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EngineEventRepository stores the immutable engine event trace.
type EngineEventRepository struct {
	db *pgxpool.Pool
}

func NewEngineEventRepository(db *pgxpool.Pool) *EngineEventRepository {
	return &EngineEventRepository{db: db}
}

// Append writes one event outside of any unit of work
func (r *EngineEventRepository) Append(ctx context.Context, event *domain.EngineEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		payloadJSON = []byte("{}")
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO engine_events
		   (id, transaction_id, saga_id, event_type, category, payload,
		    correlation_id, parent_event_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.TransactionID, event.SagaID, event.EventType, event.Category,
		payloadJSON, event.CorrelationID, event.ParentEventID, event.CreatedAt,
	)
	return err
}

// AppendWithTx writes one event inside an existing unit of work
func (r *EngineEventRepository) AppendWithTx(ctx context.Context, dbTx pgx.Tx, event *domain.EngineEvent) error {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		payloadJSON = []byte("{}")
	}

	_, err = dbTx.Exec(ctx,
		`INSERT INTO engine_events
		   (id, transaction_id, saga_id, event_type, category, payload,
		    correlation_id, parent_event_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.TransactionID, event.SagaID, event.EventType, event.Category,
		payloadJSON, event.CorrelationID, event.ParentEventID, event.CreatedAt,
	)
	return err
}

// GetByTransactionID returns all events for one transaction, oldest first
func (r *EngineEventRepository) GetByTransactionID(ctx context.Context, transactionID string) ([]*domain.EngineEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, transaction_id, saga_id, event_type, category, payload,
		        correlation_id, parent_event_id, created_at
		 FROM engine_events
		 WHERE transaction_id = $1
		 ORDER BY created_at ASC`,
		transactionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.EngineEvent
	for rows.Next() {
		var (
			event       domain.EngineEvent
			payloadJSON []byte
		)
		if err := rows.Scan(&event.ID, &event.TransactionID, &event.SagaID,
			&event.EventType, &event.Category, &payloadJSON,
			&event.CorrelationID, &event.ParentEventID, &event.CreatedAt); err != nil {
			return nil, err
		}
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &event.Payload)
		}
		result = append(result, &event)
	}
	return result, rows.Err()
}

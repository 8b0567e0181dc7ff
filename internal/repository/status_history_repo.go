package repository

import (
	"context"
	"encoding/json"

	"escrow_engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StatusHistoryRepository persists the append-only transition log. Rows are
// never updated or deleted.
type StatusHistoryRepository struct {
	db *pgxpool.Pool
}

func NewStatusHistoryRepository(db *pgxpool.Pool) *StatusHistoryRepository {
	return &StatusHistoryRepository{db: db}
}

// AppendWithTx writes one history row inside an existing unit of work
func (r *StatusHistoryRepository) AppendWithTx(ctx context.Context, dbTx pgx.Tx, entry *domain.StatusHistoryEntry) error {
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}

	return dbTx.QueryRow(ctx,
		`INSERT INTO status_history (transaction_id, from_status, to_status, reason, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		entry.TransactionID, entry.FromStatus, entry.ToStatus, entry.Reason, metaJSON, entry.CreatedAt,
	).Scan(&entry.ID)
}

// GetByTransactionID returns the full transition log, oldest first
func (r *StatusHistoryRepository) GetByTransactionID(ctx context.Context, transactionID string) ([]*domain.StatusHistoryEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, transaction_id, from_status, to_status, reason, metadata, created_at
		 FROM status_history
		 WHERE transaction_id = $1
		 ORDER BY id ASC`,
		transactionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.StatusHistoryEntry
	for rows.Next() {
		var (
			entry    domain.StatusHistoryEntry
			metaJSON []byte
		)
		if err := rows.Scan(&entry.ID, &entry.TransactionID, &entry.FromStatus,
			&entry.ToStatus, &entry.Reason, &metaJSON, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &entry.Metadata)
		}
		result = append(result, &entry)
	}
	return result, rows.Err()
}

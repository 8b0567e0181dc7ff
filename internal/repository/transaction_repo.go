package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"escrow_engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, type, status, priority, user_id, amount::text, currency,
	metadata, legacy_id, parent_id, provider, created_at, updated_at`

// CreateWithTx inserts a transaction using an existing database transaction
func (r *TransactionRepository) CreateWithTx(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction) error {
	metaJSON, err := json.Marshal(txn.Metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}

	_, err = dbTx.Exec(ctx,
		`INSERT INTO transactions
		   (id, type, status, priority, user_id, amount, currency,
		    metadata, legacy_id, parent_id, provider, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		txn.ID, txn.Type, txn.Status, txn.Priority, txn.UserID, txn.Amount.String(),
		txn.Currency, metaJSON, txn.LegacyID, txn.ParentID, txn.Provider,
		txn.CreatedAt, txn.UpdatedAt,
	)
	return err
}

// GetByID returns one transaction or domain.ErrTransactionNotFound
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTransactionNotFound
	}
	return txn, err
}

// GetByUserID returns recent transactions for a user
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, txn)
	}
	return result, rows.Err()
}

// UpdateStatusWithTx flips status only when the row still carries the
// expected current status. Returns false when the guard did not match.
func (r *TransactionRepository) UpdateStatusWithTx(ctx context.Context, dbTx pgx.Tx,
	id string, from, to domain.TransactionStatus, updatedAt time.Time) (bool, error) {

	tag, err := dbTx.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4`,
		to, updatedAt, id, from,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		txn       domain.Transaction
		amountStr string
		metaJSON  []byte
	)
	if err := row.Scan(&txn.ID, &txn.Type, &txn.Status, &txn.Priority, &txn.UserID,
		&amountStr, &txn.Currency, &metaJSON, &txn.LegacyID, &txn.ParentID,
		&txn.Provider, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, err
	}
	txn.Amount = amount

	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &txn.Metadata)
	}
	return &txn, nil
}

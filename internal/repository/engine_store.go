package repository

import (
	"context"
	"time"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/engine"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EngineStore composes the per-table repositories into the engine's atomic
// storage interface. Each write method runs in one database transaction so
// an outbox row never exists for a change that didn't commit.
type EngineStore struct {
	db           *pgxpool.Pool
	transactions *TransactionRepository
	history      *StatusHistoryRepository
	events       *EngineEventRepository
	outbox       *OutboxRepository
}

func NewEngineStore(db *pgxpool.Pool) *EngineStore {
	return &EngineStore{
		db:           db,
		transactions: NewTransactionRepository(db),
		history:      NewStatusHistoryRepository(db),
		events:       NewEngineEventRepository(db),
		outbox:       NewOutboxRepository(db),
	}
}

func (s *EngineStore) CreateTransaction(ctx context.Context, txn *domain.Transaction,
	history *domain.StatusHistoryEntry, event *domain.EngineEvent,
	outbox *domain.OutboxEvent) error {

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.transactions.CreateWithTx(ctx, tx, txn); err != nil {
		return err
	}
	if err := s.history.AppendWithTx(ctx, tx, history); err != nil {
		return err
	}
	if err := s.events.AppendWithTx(ctx, tx, event); err != nil {
		return err
	}
	if outbox != nil {
		if err := s.outbox.CreateWithTx(ctx, tx, outbox); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *EngineStore) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.transactions.GetByID(ctx, id)
}

func (s *EngineStore) ListTransactionsByUser(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error) {
	return s.transactions.GetByUserID(ctx, userID, limit)
}

func (s *EngineStore) ApplyTransition(ctx context.Context, t engine.Transition) (bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	moved, err := s.transactions.UpdateStatusWithTx(ctx, tx, t.TransactionID, t.From, t.To, now)
	if err != nil {
		return false, err
	}
	if !moved {
		// the row no longer carries the expected status; nothing is written
		return false, nil
	}

	from := t.From
	if err := s.history.AppendWithTx(ctx, tx, &domain.StatusHistoryEntry{
		TransactionID: t.TransactionID,
		FromStatus:    &from,
		ToStatus:      t.To,
		Reason:        t.Reason,
		Metadata:      t.Metadata,
		CreatedAt:     now,
	}); err != nil {
		return false, err
	}

	if t.Event != nil {
		if err := s.events.AppendWithTx(ctx, tx, t.Event); err != nil {
			return false, err
		}
	}
	if t.Outbox != nil {
		if err := s.outbox.CreateWithTx(ctx, tx, t.Outbox); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *EngineStore) GetStatusHistory(ctx context.Context, transactionID string) ([]*domain.StatusHistoryEntry, error) {
	return s.history.GetByTransactionID(ctx, transactionID)
}

func (s *EngineStore) AppendEngineEvent(ctx context.Context, event *domain.EngineEvent) error {
	return s.events.Append(ctx, event)
}

var _ engine.Store = (*EngineStore)(nil)

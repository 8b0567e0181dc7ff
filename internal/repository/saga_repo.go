package repository

import (
	"context"
	"encoding/json"

	"escrow_engine/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SagaRepository persists saga step state. Steps are created as a batch at
// saga initiation and updated one at a time during execution.
type SagaRepository struct {
	db *pgxpool.Pool
}

func NewSagaRepository(db *pgxpool.Pool) *SagaRepository {
	return &SagaRepository{db: db}
}

// CreateSteps inserts the full step batch in one unit of work
func (r *SagaRepository) CreateSteps(ctx context.Context, steps []*domain.SagaStep) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, step := range steps {
		actionJSON, err := json.Marshal(step.ActionPayload)
		if err != nil {
			actionJSON = []byte("{}")
		}
		var compJSON []byte
		if step.CompPayload != nil {
			compJSON, err = json.Marshal(step.CompPayload)
			if err != nil {
				compJSON = []byte("{}")
			}
		}
		dependsJSON, err := json.Marshal(step.DependsOn)
		if err != nil {
			dependsJSON = []byte("[]")
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO saga_steps
			   (id, saga_id, transaction_id, name, step_type, step_order,
			    target_service, target_method, action_payload, comp_payload,
			    depends_on, status, attempts, max_attempts, timeout_seconds,
			    created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			step.ID, step.SagaID, step.TransactionID, step.Name, step.Type, step.Order,
			step.TargetService, step.TargetMethod, actionJSON, compJSON,
			dependsJSON, step.Status, step.Attempts, step.MaxAttempts, step.TimeoutSeconds,
			step.CreatedAt, step.UpdatedAt,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// UpdateStep persists the mutable execution fields of one step
func (r *SagaRepository) UpdateStep(ctx context.Context, step *domain.SagaStep) error {
	_, err := r.db.Exec(ctx,
		`UPDATE saga_steps
		 SET status = $1, attempts = $2, result = $3, comp_result = $4, updated_at = $5
		 WHERE id = $6`,
		step.Status, step.Attempts, step.Result, step.CompResult, step.UpdatedAt, step.ID,
	)
	return err
}

// GetSteps returns all steps of one saga in execution order
func (r *SagaRepository) GetSteps(ctx context.Context, sagaID string) ([]*domain.SagaStep, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, saga_id, transaction_id, name, step_type, step_order,
		        target_service, target_method, action_payload, comp_payload,
		        depends_on, status, attempts, max_attempts, timeout_seconds,
		        result, comp_result, created_at, updated_at
		 FROM saga_steps
		 WHERE saga_id = $1
		 ORDER BY step_order ASC`,
		sagaID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.SagaStep
	for rows.Next() {
		var (
			step        domain.SagaStep
			actionJSON  []byte
			compJSON    []byte
			dependsJSON []byte
			stepResult  *string
			compResult  *string
		)
		if err := rows.Scan(&step.ID, &step.SagaID, &step.TransactionID, &step.Name,
			&step.Type, &step.Order, &step.TargetService, &step.TargetMethod,
			&actionJSON, &compJSON, &dependsJSON, &step.Status, &step.Attempts,
			&step.MaxAttempts, &step.TimeoutSeconds, &stepResult, &compResult,
			&step.CreatedAt, &step.UpdatedAt); err != nil {
			return nil, err
		}
		if len(actionJSON) > 0 {
			_ = json.Unmarshal(actionJSON, &step.ActionPayload)
		}
		if len(compJSON) > 0 {
			_ = json.Unmarshal(compJSON, &step.CompPayload)
		}
		if len(dependsJSON) > 0 {
			_ = json.Unmarshal(dependsJSON, &step.DependsOn)
		}
		if stepResult != nil {
			step.Result = *stepResult
		}
		if compResult != nil {
			step.CompResult = *compResult
		}
		result = append(result, &step)
	}
	return result, rows.Err()
}

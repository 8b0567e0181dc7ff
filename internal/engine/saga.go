package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/logger"
)

// ErrSagaCancelled is returned by Run when a cancellation request was
// recognized at a step boundary and compensation has completed.
var ErrSagaCancelled = errors.New("saga cancelled at step boundary")

const retryBackoff = 200 * time.Millisecond

// Orchestrator executes a saga's steps strictly in order and compensates
// completed steps in reverse order when a later step fails. Steps within one
// run are serialized by this loop; no extra locking is needed inside a saga.
type Orchestrator struct {
	store SagaStore
	exec  StepExecutor

	// cancelRequested reports whether a cancellation was requested for the
	// owning transaction; checked only at step boundaries.
	cancelRequested func(transactionID string) bool
	// recordEvent appends a saga trace event; failures to record are the
	// recorder's problem, the orchestrator keeps going.
	recordEvent func(ctx context.Context, txn *domain.Transaction, sagaID, eventType string, payload map[string]interface{})
}

// NewOrchestrator builds an orchestrator. cancelRequested and recordEvent
// may be nil.
func NewOrchestrator(store SagaStore, exec StepExecutor,
	cancelRequested func(string) bool,
	recordEvent func(context.Context, *domain.Transaction, string, string, map[string]interface{}),
) *Orchestrator {
	if cancelRequested == nil {
		cancelRequested = func(string) bool { return false }
	}
	if recordEvent == nil {
		recordEvent = func(context.Context, *domain.Transaction, string, string, map[string]interface{}) {}
	}
	return &Orchestrator{
		store:           store,
		exec:            exec,
		cancelRequested: cancelRequested,
		recordEvent:     recordEvent,
	}
}

// Run executes all steps for one transaction. On success every step is
// COMPLETED and Run returns nil. On failure the failed step is FAILED,
// previously completed compensatable steps are compensated in reverse
// order, and Run returns the step error; the caller then moves the owning
// transaction to its terminal status through the validated path.
func (o *Orchestrator) Run(ctx context.Context, txn *domain.Transaction, steps []*domain.SagaStep) error {
	if len(steps) == 0 {
		return &domain.EngineError{Op: "run saga", Err: errors.New("saga has zero steps")}
	}

	ordered := make([]*domain.SagaStep, len(steps))
	copy(ordered, steps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	sagaID := ordered[0].SagaID
	var completed []*domain.SagaStep

	for _, step := range ordered {
		if o.cancelRequested(txn.ID) {
			logger.Info("cancellation recognized at step boundary",
				"transaction_id", txn.ID, "saga_id", sagaID, "next_step", step.Name)
			o.compensate(ctx, txn, completed)
			return ErrSagaCancelled
		}

		res, err := o.runStep(ctx, txn, step)
		if err != nil {
			o.recordEvent(ctx, txn, sagaID, domain.EventSagaStepFailed, map[string]interface{}{
				"step": step.Name, "step_type": string(step.Type),
				"attempts": step.Attempts, "error": res.Message,
			})
			o.compensate(ctx, txn, completed)
			return fmt.Errorf("step %q failed: %w", step.Name, err)
		}

		completed = append(completed, step)
		o.recordEvent(ctx, txn, sagaID, domain.EventSagaStepCompleted, map[string]interface{}{
			"step": step.Name, "step_type": string(step.Type), "attempts": step.Attempts,
		})
	}

	return nil
}

// runStep drives one step through its attempt budget. A failure is retried
// while the provider reports it retryable and attempts remain; the step's
// timeout applies per attempt.
func (o *Orchestrator) runStep(ctx context.Context, txn *domain.Transaction, step *domain.SagaStep) (domain.ProviderResult, error) {
	var res domain.ProviderResult

	for {
		step.Attempts++
		step.Status = domain.StepRunning
		step.UpdatedAt = time.Now().UTC()
		if err := o.store.UpdateStep(ctx, step); err != nil {
			return domain.ProviderResult{}, fmt.Errorf("persist step %q: %w", step.Name, err)
		}

		res = o.executeWithTimeout(ctx, txn, step)
		if res.Success {
			step.Status = domain.StepCompleted
			step.Result = res.Message
			step.UpdatedAt = time.Now().UTC()
			if err := o.store.UpdateStep(ctx, step); err != nil {
				return res, fmt.Errorf("persist step %q: %w", step.Name, err)
			}
			SagaStepsTotal.WithLabelValues(string(step.Type), "completed").Inc()
			return res, nil
		}

		if res.IsRetryable && step.Attempts < step.MaxAttempts {
			logger.Warn("saga step failed, retrying",
				"transaction_id", txn.ID, "step", step.Name,
				"attempt", step.Attempts, "max_attempts", step.MaxAttempts,
				"error", res.Message)
			SagaStepsTotal.WithLabelValues(string(step.Type), "retried").Inc()
			select {
			case <-ctx.Done():
			case <-time.After(retryBackoff):
			}
			continue
		}

		step.Status = domain.StepFailed
		step.Result = res.Message
		step.UpdatedAt = time.Now().UTC()
		if err := o.store.UpdateStep(ctx, step); err != nil {
			logger.Error("failed to persist failed step", "step", step.Name, "error", err)
		}
		SagaStepsTotal.WithLabelValues(string(step.Type), "failed").Inc()
		return res, fmt.Errorf("%s: %s", res.ErrorCode, res.Message)
	}
}

func (o *Orchestrator) executeWithTimeout(ctx context.Context, txn *domain.Transaction, step *domain.SagaStep) domain.ProviderResult {
	if step.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	return o.exec.Execute(ctx, txn, step)
}

// compensate walks completed steps in reverse order and runs the
// compensating action for every step that has one. Compensation is
// best-effort: failures are recorded and logged but never re-thrown, so a
// broken undo cannot crash the orchestrator mid-walk.
func (o *Orchestrator) compensate(ctx context.Context, txn *domain.Transaction, completed []*domain.SagaStep) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if !step.Compensatable() {
			continue
		}

		step.Status = domain.StepCompensating
		step.UpdatedAt = time.Now().UTC()
		if err := o.store.UpdateStep(ctx, step); err != nil {
			logger.Error("failed to persist compensating step", "step", step.Name, "error", err)
		}

		res := o.exec.Compensate(ctx, txn, step)
		if res.Success {
			step.Status = domain.StepCompensated
			step.CompResult = res.Message
			SagaStepsTotal.WithLabelValues(string(step.Type), "compensated").Inc()
		} else {
			// leave the step in COMPENSATING with the failure recorded;
			// remediation is a manual concern
			step.CompResult = "compensation failed: " + res.Message
			logger.Error("saga compensation failed",
				"transaction_id", txn.ID, "step", step.Name, "error", res.Message)
			SagaStepsTotal.WithLabelValues(string(step.Type), "compensation_failed").Inc()
		}
		step.UpdatedAt = time.Now().UTC()
		if err := o.store.UpdateStep(ctx, step); err != nil {
			logger.Error("failed to persist compensated step", "step", step.Name, "error", err)
		}

		o.recordEvent(ctx, txn, step.SagaID, domain.EventSagaCompensated, map[string]interface{}{
			"step": step.Name, "step_type": string(step.Type), "result": step.CompResult,
		})
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/logger"
	"escrow_engine/internal/provider"
	"escrow_engine/internal/state"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Config wires the engine's collaborators. Every field except Sink and
// EscrowExpiry is required.
type Config struct {
	Store     Store
	Outbox    OutboxStore
	Inbox     InboxStore
	Sagas     SagaStore
	States    *state.Service
	Providers *provider.Registry
	Ledger    Ledger
	Locks     Locker
	Sink      EventSink

	// EscrowExpiry, when positive, schedules a delayed expiry-reminder
	// outbox event for every escrow transaction.
	EscrowExpiry time.Duration
}

// Engine is the single entry point for transaction processing. Callers never
// touch transaction status directly; every change flows through the
// validated transition path here.
type Engine struct {
	store     Store
	outbox    OutboxStore
	inbox     InboxStore
	sagas     SagaStore
	states    *state.Service
	providers *provider.Registry
	ledger    Ledger
	locks     Locker
	sink      EventSink

	orchestrator *Orchestrator
	escrowExpiry time.Duration

	wg sync.WaitGroup

	cancelMu  sync.Mutex
	cancelReq map[string]bool
}

// New builds an engine. Dependencies are injected; the engine holds no
// global state beyond its metrics.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("engine: Store is required")
	case cfg.Outbox == nil:
		return nil, errors.New("engine: OutboxStore is required")
	case cfg.Inbox == nil:
		return nil, errors.New("engine: InboxStore is required")
	case cfg.Sagas == nil:
		return nil, errors.New("engine: SagaStore is required")
	case cfg.States == nil:
		return nil, errors.New("engine: state service is required")
	case cfg.Providers == nil:
		return nil, errors.New("engine: provider registry is required")
	case cfg.Ledger == nil:
		return nil, errors.New("engine: Ledger is required")
	case cfg.Locks == nil:
		return nil, errors.New("engine: Locker is required")
	}

	e := &Engine{
		store:        cfg.Store,
		outbox:       cfg.Outbox,
		inbox:        cfg.Inbox,
		sagas:        cfg.Sagas,
		states:       cfg.States,
		providers:    cfg.Providers,
		ledger:       cfg.Ledger,
		locks:        cfg.Locks,
		sink:         cfg.Sink,
		escrowExpiry: cfg.EscrowExpiry,
		cancelReq:    make(map[string]bool),
	}
	e.orchestrator = NewOrchestrator(
		cfg.Sagas,
		NewStepExecutor(cfg.Ledger, cfg.Providers),
		e.isCancelRequested,
		e.recordSagaEvent,
	)
	return e, nil
}

// Wait blocks until all spawned processing goroutines have finished. Used
// during shutdown and by tests that need deterministic completion.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// CreateTransaction records a new transaction in INITIATED, commits the
// creation audit rows atomically, then hands processing to a supervised
// background goroutine and returns immediately.
func (e *Engine) CreateTransaction(ctx context.Context, req *domain.CreateTransactionRequest) (*domain.TransactionResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return &domain.TransactionResult{
			Success:   false,
			Error:     "amount must be positive",
			ErrorCode: "invalid_amount",
		}, domain.ErrInvalidAmount
	}
	if req.Type == "" || req.Currency == "" || req.UserID == 0 {
		return &domain.TransactionResult{
			Success:   false,
			Error:     "type, user_id and currency are required",
			ErrorCode: "missing_fields",
		}, fmt.Errorf("incomplete create request")
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Status:    domain.StatusInitiated,
		Priority:  req.Priority,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Metadata:  req.Metadata,
		LegacyID:  req.LegacyID,
		ParentID:  req.ParentID,
		Provider:  req.PreferredProvider,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if txn.Priority == "" {
		txn.Priority = domain.PriorityNormal
	}

	history := &domain.StatusHistoryEntry{
		TransactionID: txn.ID,
		FromStatus:    nil,
		ToStatus:      domain.StatusInitiated,
		Reason:        "transaction created",
		CreatedAt:     now,
	}
	event := e.newEvent(txn, nil, domain.EventTransactionCreated, domain.EventCategoryBusiness,
		map[string]interface{}{"type": string(txn.Type), "amount": txn.Amount.String(), "currency": txn.Currency})
	outbox := e.newOutboxEvent(txn, "transaction.created", now,
		map[string]interface{}{"type": string(txn.Type), "status": string(txn.Status)})

	if err := e.store.CreateTransaction(ctx, txn, history, event, outbox); err != nil {
		return &domain.TransactionResult{
			Success:   false,
			Error:     "failed to persist transaction",
			ErrorCode: "storage_error",
		}, fmt.Errorf("create transaction: %w", err)
	}
	e.emit(event)

	if e.escrowExpiry > 0 && txn.Type == domain.TypeEscrow {
		reminder := e.newOutboxEvent(txn, "escrow.expiry_reminder", now.Add(e.escrowExpiry),
			map[string]interface{}{"expires_at": now.Add(e.escrowExpiry).Format(time.RFC3339)})
		if err := e.outbox.CreateOutboxEvent(ctx, reminder); err != nil {
			logger.Error("failed to schedule expiry reminder", "transaction_id", txn.ID, "error", err)
		}
	}

	logger.Info("transaction created",
		"transaction_id", txn.ID, "type", txn.Type,
		"user_id", txn.UserID, "amount", txn.Amount, "currency", txn.Currency)

	e.spawn(txn.ID)

	return &domain.TransactionResult{
		Success:       true,
		TransactionID: txn.ID,
		Status:        domain.StatusInitiated,
		Message:       "transaction accepted for processing",
	}, nil
}

// GetTransaction returns the transaction row.
func (e *Engine) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return e.store.GetTransaction(ctx, id)
}

// GetTransactionStatus returns the current status as a result envelope.
func (e *Engine) GetTransactionStatus(ctx context.Context, id string) (*domain.TransactionResult, error) {
	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return &domain.TransactionResult{
			Success:   false,
			Error:     "transaction not found",
			ErrorCode: "not_found",
		}, err
	}
	return &domain.TransactionResult{
		Success:       true,
		TransactionID: txn.ID,
		Status:        txn.Status,
	}, nil
}

// GetStatusHistory returns the append-only transition log, oldest first.
func (e *Engine) GetStatusHistory(ctx context.Context, id string) ([]*domain.StatusHistoryEntry, error) {
	return e.store.GetStatusHistory(ctx, id)
}

// ListTransactionsByUser returns the user's most recent transactions.
func (e *Engine) ListTransactionsByUser(ctx context.Context, userID int64, limit int) ([]*domain.Transaction, error) {
	return e.store.ListTransactionsByUser(ctx, userID, limit)
}

// CancelTransaction cancels a transaction. Outside of execution this is a
// direct validated transition; mid-saga the request is flagged and applied
// at the next step boundary, after which completed steps are compensated.
// The flag is process-local: it only reaches a saga running in this
// instance, so deployments that fan transactions out across instances must
// route cancels to the instance driving the saga (sagas for a transaction
// run where CreateTransaction or RetryTransaction accepted it).
func (e *Engine) CancelTransaction(ctx context.Context, id, reason string) (*domain.TransactionResult, error) {
	release, err := e.locks.Acquire(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock transaction %s: %w", id, err)
	}
	defer release()

	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return &domain.TransactionResult{
			Success: false, Error: "transaction not found", ErrorCode: "not_found",
		}, err
	}

	terminal, err := e.states.IsTerminalState(state.EntityTransaction, string(txn.Status))
	if err != nil {
		return nil, fmt.Errorf("classify status %s: %w", txn.Status, err)
	}
	if terminal {
		return &domain.TransactionResult{
			Success:       false,
			TransactionID: txn.ID,
			Status:        txn.Status,
			Error:         fmt.Sprintf("transaction is already %s", txn.Status),
			ErrorCode:     "terminal_status",
		}, nil
	}

	if txn.Status == domain.StatusProcessing {
		e.requestCancel(txn.ID)
		logger.Info("cancellation requested for running transaction", "transaction_id", txn.ID)
		return &domain.TransactionResult{
			Success:       true,
			TransactionID: txn.ID,
			Status:        txn.Status,
			Message:       "cancellation requested; will apply at the next step boundary",
		}, nil
	}

	if err := e.transition(ctx, txn, domain.StatusCancelled, reason, nil, false); err != nil {
		return e.transitionFailure(txn, domain.StatusCancelled, err), nil
	}
	return &domain.TransactionResult{
		Success:       true,
		TransactionID: txn.ID,
		Status:        domain.StatusCancelled,
		Message:       "transaction cancelled",
	}, nil
}

// RetryTransaction re-drives a FAILED transaction. The only legal entry is
// FAILED -> PENDING; anything else is rejected by the validator.
func (e *Engine) RetryTransaction(ctx context.Context, id string) (*domain.TransactionResult, error) {
	release, err := e.locks.Acquire(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock transaction %s: %w", id, err)
	}

	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		release()
		return &domain.TransactionResult{
			Success: false, Error: "transaction not found", ErrorCode: "not_found",
		}, err
	}

	if err := e.transition(ctx, txn, domain.StatusPending, "manual retry", nil, false); err != nil {
		release()
		return e.transitionFailure(txn, domain.StatusPending, err), nil
	}
	release()

	e.spawn(txn.ID)
	return &domain.TransactionResult{
		Success:       true,
		TransactionID: txn.ID,
		Status:        domain.StatusPending,
		Message:       "transaction queued for retry",
	}, nil
}

// ForceStatus applies an arbitrary status change, bypassing the transition
// table. Admin-only; every use is critically logged and audited.
func (e *Engine) ForceStatus(ctx context.Context, id string, to domain.TransactionStatus, reason, actor string) (*domain.TransactionResult, error) {
	release, err := e.locks.Acquire(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock transaction %s: %w", id, err)
	}
	defer release()

	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return &domain.TransactionResult{
			Success: false, Error: "transaction not found", ErrorCode: "not_found",
		}, err
	}

	meta := map[string]interface{}{"forced": true, "actor": actor}
	if err := e.transition(ctx, txn, to, reason, meta, true); err != nil {
		return e.transitionFailure(txn, to, err), nil
	}
	ForcedTransitionsTotal.Inc()
	return &domain.TransactionResult{
		Success:       true,
		TransactionID: txn.ID,
		Status:        to,
		Message:       "status forced",
	}, nil
}

// transition runs one validated status change. The caller holds the
// per-transaction lock; the conditional update backs the lock up, so a
// concurrent move is surfaced as ErrConcurrentUpdate instead of a lost write.
func (e *Engine) transition(ctx context.Context, txn *domain.Transaction,
	to domain.TransactionStatus, reason string, metadata map[string]interface{}, force bool) error {

	valid, err := e.states.TransitionEntityStatus(
		state.EntityTransaction, txn.ID, string(txn.Status), string(to), reason, force)
	if err != nil {
		TransitionsTotal.WithLabelValues(string(to), "rejected").Inc()
		return err
	}
	if !valid {
		TransitionsTotal.WithLabelValues(string(to), "rejected").Inc()
		return &domain.InvalidTransitionError{
			EntityType: string(state.EntityTransaction), EntityID: txn.ID,
			From: string(txn.Status), To: string(to), Reason: "transition not allowed",
		}
	}

	eventType := domain.EventStatusChanged
	if force {
		eventType = domain.EventStatusForced
	}
	event := e.newEvent(txn, nil, eventType, domain.EventCategoryBusiness, map[string]interface{}{
		"from": string(txn.Status), "to": string(to), "reason": reason,
	})

	var outbox *domain.OutboxEvent
	switch to {
	case domain.StatusCompleted:
		outbox = e.newOutboxEvent(txn, "transaction.completed", time.Now().UTC(),
			map[string]interface{}{"from": string(txn.Status)})
	case domain.StatusFailed:
		outbox = e.newOutboxEvent(txn, "transaction.failed", time.Now().UTC(),
			map[string]interface{}{"from": string(txn.Status), "reason": reason})
	case domain.StatusCancelled:
		outbox = e.newOutboxEvent(txn, "transaction.cancelled", time.Now().UTC(),
			map[string]interface{}{"from": string(txn.Status), "reason": reason})
	}

	applied, err := e.store.ApplyTransition(ctx, Transition{
		TransactionID: txn.ID,
		From:          txn.Status,
		To:            to,
		Reason:        reason,
		Metadata:      metadata,
		Event:         event,
		Outbox:        outbox,
	})
	if err != nil {
		TransitionsTotal.WithLabelValues(string(to), "error").Inc()
		return fmt.Errorf("apply transition %s -> %s: %w", txn.Status, to, err)
	}
	if !applied {
		TransitionsTotal.WithLabelValues(string(to), "conflict").Inc()
		return domain.ErrConcurrentUpdate
	}

	TransitionsTotal.WithLabelValues(string(to), "applied").Inc()
	logger.Info("status transition applied",
		"transaction_id", txn.ID, "from", txn.Status, "to", to, "forced", force)

	txn.Status = to
	txn.UpdatedAt = time.Now().UTC()
	e.emit(event)
	return nil
}

func (e *Engine) transitionFailure(txn *domain.Transaction, to domain.TransactionStatus, err error) *domain.TransactionResult {
	var invalid *domain.InvalidTransitionError
	code := "transition_failed"
	if errors.As(err, &invalid) {
		code = "invalid_transition"
	} else if errors.Is(err, domain.ErrConcurrentUpdate) {
		code = "concurrent_update"
	}
	return &domain.TransactionResult{
		Success:       false,
		TransactionID: txn.ID,
		Status:        txn.Status,
		Error:         fmt.Sprintf("cannot move to %s: %v", to, err),
		ErrorCode:     code,
		IsRetryable:   code == "concurrent_update",
	}
}

// spawn starts supervised background processing for one transaction.
func (e *Engine) spawn(transactionID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("transaction processing panicked",
					"transaction_id", transactionID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		e.process(ctx, transactionID)
	}()
}

// process drives one transaction from its current status to a terminal one.
func (e *Engine) process(ctx context.Context, transactionID string) {
	started := time.Now()

	txn, err := e.store.GetTransaction(ctx, transactionID)
	if err != nil {
		logger.Error("cannot load transaction for processing",
			"transaction_id", transactionID, "error", err)
		return
	}

	result := "completed"
	defer func() {
		e.clearCancel(transactionID)
		ProcessingSeconds.WithLabelValues(string(txn.Type), result).Observe(time.Since(started).Seconds())
	}()

	fail := func(reason string) {
		result = "failed"
		if err := e.lockedTransition(ctx, txn, domain.StatusFailed, reason, nil); err != nil {
			logger.Error("failed to mark transaction FAILED",
				"transaction_id", txn.ID, "error", err)
		}
		e.emit(e.record(ctx, txn, nil, domain.EventTransactionFailed,
			map[string]interface{}{"reason": reason}))
	}

	if txn.Status == domain.StatusInitiated {
		if err := e.lockedTransition(ctx, txn, domain.StatusPending, "processing started", nil); err != nil {
			logger.Error("cannot move to PENDING", "transaction_id", txn.ID, "error", err)
			result = "error"
			return
		}
	}
	if txn.Status == domain.StatusPending {
		if err := e.lockedTransition(ctx, txn, domain.StatusProcessing, "execution started", nil); err != nil {
			logger.Error("cannot move to PROCESSING", "transaction_id", txn.ID, "error", err)
			result = "error"
			return
		}
	}
	if txn.Status != domain.StatusProcessing {
		logger.Warn("transaction not processable",
			"transaction_id", txn.ID, "status", txn.Status)
		result = "skipped"
		return
	}

	var runErr error
	if txn.Type.RequiresSaga() {
		runErr = e.runSaga(ctx, txn)
	} else {
		runErr = e.runSimple(ctx, txn)
	}

	switch {
	case runErr == nil:
		if err := e.lockedTransition(ctx, txn, domain.StatusCompleted, "processing finished", nil); err != nil {
			logger.Error("failed to mark transaction COMPLETED",
				"transaction_id", txn.ID, "error", err)
			result = "error"
			return
		}
		e.emit(e.record(ctx, txn, nil, domain.EventTransactionCompleted, nil))

	case errors.Is(runErr, ErrSagaCancelled):
		result = "cancelled"
		if err := e.lockedTransition(ctx, txn, domain.StatusCancelled, "cancelled during execution", nil); err != nil {
			logger.Error("failed to mark transaction CANCELLED",
				"transaction_id", txn.ID, "error", err)
		}

	default:
		fail(runErr.Error())
	}
}

func (e *Engine) runSaga(ctx context.Context, txn *domain.Transaction) error {
	steps, err := BuildPlan(txn)
	if err != nil {
		return err
	}
	if err := e.sagas.CreateSteps(ctx, steps); err != nil {
		return fmt.Errorf("persist saga steps: %w", err)
	}

	sagaID := steps[0].SagaID
	e.emit(e.record(ctx, txn, &sagaID, domain.EventSagaInitiated, map[string]interface{}{
		"saga_id": sagaID, "steps": len(steps),
	}))

	return e.orchestrator.Run(ctx, txn, steps)
}

// runSimple executes non-saga types as a single ledger movement.
func (e *Engine) runSimple(ctx context.Context, txn *domain.Transaction) error {
	switch txn.Type {
	case domain.TypeEscrowPayment:
		return e.ledger.Debit(ctx, txn.UserID, txn.Amount, txn.Currency, txn.ID)
	case domain.TypeEscrowRelease:
		return e.ledger.Credit(ctx, txn.UserID, txn.Amount, txn.Currency, txn.ID)
	case domain.TypeGeneric:
		return nil
	}
	return &domain.EngineError{
		Op:  "run simple transaction",
		Err: fmt.Errorf("no handler for type %q", txn.Type),
	}
}

// lockedTransition wraps transition with the per-transaction lock for
// callers that don't already hold it.
func (e *Engine) lockedTransition(ctx context.Context, txn *domain.Transaction,
	to domain.TransactionStatus, reason string, metadata map[string]interface{}) error {

	release, err := e.locks.Acquire(ctx, txn.ID)
	if err != nil {
		return fmt.Errorf("lock transaction %s: %w", txn.ID, err)
	}
	defer release()
	return e.transition(ctx, txn, to, reason, metadata, false)
}

func (e *Engine) requestCancel(id string) {
	e.cancelMu.Lock()
	e.cancelReq[id] = true
	e.cancelMu.Unlock()
}

func (e *Engine) isCancelRequested(id string) bool {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	return e.cancelReq[id]
}

func (e *Engine) clearCancel(id string) {
	e.cancelMu.Lock()
	delete(e.cancelReq, id)
	e.cancelMu.Unlock()
}

func (e *Engine) newEvent(txn *domain.Transaction, sagaID *string,
	eventType, category string, payload map[string]interface{}) *domain.EngineEvent {
	return &domain.EngineEvent{
		ID:            uuid.NewString(),
		TransactionID: txn.ID,
		SagaID:        sagaID,
		EventType:     eventType,
		Category:      category,
		Payload:       payload,
		CorrelationID: txn.ID,
		CreatedAt:     time.Now().UTC(),
	}
}

func (e *Engine) newOutboxEvent(txn *domain.Transaction, eventType string,
	scheduledAt time.Time, payload map[string]interface{}) *domain.OutboxEvent {
	txnID := txn.ID
	userID := txn.UserID
	return &domain.OutboxEvent{
		ID:            uuid.NewString(),
		EventType:     eventType,
		EntityType:    "transaction",
		EntityID:      txn.ID,
		TransactionID: &txnID,
		UserID:        &userID,
		Payload:       payload,
		Status:        domain.OutboxPending,
		ScheduledAt:   scheduledAt,
		CreatedAt:     time.Now().UTC(),
	}
}

// record appends an engine event to the audit log and returns it. Append
// failures are logged; the event is still returned for the sink.
func (e *Engine) record(ctx context.Context, txn *domain.Transaction, sagaID *string,
	eventType string, payload map[string]interface{}) *domain.EngineEvent {
	event := e.newEvent(txn, sagaID, eventType, domain.EventCategoryBusiness, payload)
	if err := e.store.AppendEngineEvent(ctx, event); err != nil {
		logger.Error("failed to append engine event",
			"transaction_id", txn.ID, "event_type", eventType, "error", err)
	}
	return event
}

// recordSagaEvent is the orchestrator's event callback.
func (e *Engine) recordSagaEvent(ctx context.Context, txn *domain.Transaction,
	sagaID, eventType string, payload map[string]interface{}) {
	e.emit(e.record(ctx, txn, &sagaID, eventType, payload))
}

func (e *Engine) emit(event *domain.EngineEvent) {
	if e.sink != nil && event != nil {
		e.sink.PublishEvent(event)
	}
}

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"escrow_engine/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// scripted executor for orchestrator-level tests
type scriptedExecutor struct {
	mu          sync.Mutex
	results     map[string][]domain.ProviderResult // per step name, consumed in order
	executed    []string
	compensated []string
	compFail    map[string]bool
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		results:  make(map[string][]domain.ProviderResult),
		compFail: make(map[string]bool),
	}
}

func (s *scriptedExecutor) script(stepName string, results ...domain.ProviderResult) {
	s.results[stepName] = results
}

func (s *scriptedExecutor) Execute(_ context.Context, _ *domain.Transaction, step *domain.SagaStep) domain.ProviderResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, step.Name)
	queue := s.results[step.Name]
	if len(queue) == 0 {
		return domain.OK("scripted", "ok", nil)
	}
	res := queue[0]
	s.results[step.Name] = queue[1:]
	return res
}

func (s *scriptedExecutor) Compensate(_ context.Context, _ *domain.Transaction, step *domain.SagaStep) domain.ProviderResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compensated = append(s.compensated, step.Name)
	if s.compFail[step.Name] {
		return domain.Fail("scripted", "comp_error", "undo broke", false)
	}
	return domain.OK("scripted", "undone", nil)
}

func testSteps(txnID string, compensatable ...string) []*domain.SagaStep {
	compSet := make(map[string]bool, len(compensatable))
	for _, name := range compensatable {
		compSet[name] = true
	}
	names := []string{"first", "second", "third"}
	sagaID := uuid.NewString()
	steps := make([]*domain.SagaStep, 0, len(names))
	for i, name := range names {
		step := &domain.SagaStep{
			ID:            uuid.NewString(),
			SagaID:        sagaID,
			TransactionID: txnID,
			Name:          name,
			Type:          domain.StepValidateParams,
			Order:         i + 1,
			Status:        domain.StepPending,
			MaxAttempts:   3,
		}
		if compSet[name] {
			step.CompPayload = map[string]interface{}{"undo": true}
		}
		steps = append(steps, step)
	}
	return steps
}

func testTxn() *domain.Transaction {
	return &domain.Transaction{
		ID:       uuid.NewString(),
		Type:     domain.TypeWalletCashout,
		Status:   domain.StatusProcessing,
		UserID:   1,
		Amount:   decimal.RequireFromString("10"),
		Currency: "USD",
	}
}

func TestOrchestratorRunsStepsInOrder(t *testing.T) {
	exec := newScriptedExecutor()
	o := NewOrchestrator(newMemSagas(), exec, nil, nil)
	txn := testTxn()
	steps := testSteps(txn.ID)

	// deliberately shuffled input; Order decides
	shuffled := []*domain.SagaStep{steps[2], steps[0], steps[1]}
	if err := o.Run(context.Background(), txn, shuffled); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(exec.executed) != len(want) {
		t.Fatalf("executed %v", exec.executed)
	}
	for i, name := range want {
		if exec.executed[i] != name {
			t.Fatalf("position %d: got %q, want %q", i, exec.executed[i], name)
		}
	}
	for _, step := range steps {
		if step.Status != domain.StepCompleted {
			t.Fatalf("step %q is %s", step.Name, step.Status)
		}
	}
}

func TestOrchestratorRetriesWithinBudget(t *testing.T) {
	exec := newScriptedExecutor()
	exec.script("second",
		domain.Fail("scripted", "flaky", "transient", true),
		domain.Fail("scripted", "flaky", "transient again", true),
		domain.OK("scripted", "ok", nil),
	)
	o := NewOrchestrator(newMemSagas(), exec, nil, nil)
	txn := testTxn()
	steps := testSteps(txn.ID)

	if err := o.Run(context.Background(), txn, steps); err != nil {
		t.Fatalf("run: %v", err)
	}
	if steps[1].Attempts != 3 {
		t.Fatalf("expected 3 attempts on second step, got %d", steps[1].Attempts)
	}
	if steps[1].Status != domain.StepCompleted {
		t.Fatalf("second step is %s", steps[1].Status)
	}
}

func TestOrchestratorStopsRetryingPermanentFailures(t *testing.T) {
	exec := newScriptedExecutor()
	exec.script("second", domain.Fail("scripted", "rejected", "hard no", false))
	o := NewOrchestrator(newMemSagas(), exec, nil, nil)
	txn := testTxn()
	steps := testSteps(txn.ID)

	err := o.Run(context.Background(), txn, steps)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if steps[1].Attempts != 1 {
		t.Fatalf("permanent failure must not retry, got %d attempts", steps[1].Attempts)
	}
	if steps[1].Status != domain.StepFailed {
		t.Fatalf("second step is %s", steps[1].Status)
	}
	if steps[2].Status != domain.StepPending {
		t.Fatalf("third step must never run, got %s", steps[2].Status)
	}
}

func TestOrchestratorCompensatesInReverseOrder(t *testing.T) {
	exec := newScriptedExecutor()
	exec.script("third", domain.Fail("scripted", "boom", "step blew up", false))
	o := NewOrchestrator(newMemSagas(), exec, nil, nil)
	txn := testTxn()
	steps := testSteps(txn.ID, "first", "second")

	if err := o.Run(context.Background(), txn, steps); err == nil {
		t.Fatal("expected run to fail")
	}

	want := []string{"second", "first"}
	if len(exec.compensated) != len(want) {
		t.Fatalf("compensated %v", exec.compensated)
	}
	for i, name := range want {
		if exec.compensated[i] != name {
			t.Fatalf("compensation position %d: got %q, want %q", i, exec.compensated[i], name)
		}
	}
	if steps[0].Status != domain.StepCompensated || steps[1].Status != domain.StepCompensated {
		t.Fatalf("statuses: %s, %s", steps[0].Status, steps[1].Status)
	}
}

func TestOrchestratorSkipsNonCompensatableSteps(t *testing.T) {
	exec := newScriptedExecutor()
	exec.script("third", domain.Fail("scripted", "boom", "step blew up", false))
	o := NewOrchestrator(newMemSagas(), exec, nil, nil)
	txn := testTxn()
	steps := testSteps(txn.ID, "second") // only "second" has a comp payload

	if err := o.Run(context.Background(), txn, steps); err == nil {
		t.Fatal("expected run to fail")
	}
	if len(exec.compensated) != 1 || exec.compensated[0] != "second" {
		t.Fatalf("compensated %v", exec.compensated)
	}
	if steps[0].Status != domain.StepCompleted {
		t.Fatalf("non-compensatable completed step must stay completed, got %s", steps[0].Status)
	}
}

func TestOrchestratorCompensationFailureIsRecordedNotFatal(t *testing.T) {
	exec := newScriptedExecutor()
	exec.script("third", domain.Fail("scripted", "boom", "step blew up", false))
	exec.compFail["second"] = true
	o := NewOrchestrator(newMemSagas(), exec, nil, nil)
	txn := testTxn()
	steps := testSteps(txn.ID, "first", "second")

	err := o.Run(context.Background(), txn, steps)
	if err == nil {
		t.Fatal("expected run to fail")
	}
	if errors.Is(err, ErrSagaCancelled) {
		t.Fatal("wrong error kind")
	}

	// broken undo is left COMPENSATING with the failure recorded; the walk
	// continues to earlier steps
	if steps[1].Status != domain.StepCompensating {
		t.Fatalf("second step is %s", steps[1].Status)
	}
	if !strings.HasPrefix(steps[1].CompResult, "compensation failed") {
		t.Fatalf("comp result %q", steps[1].CompResult)
	}
	if steps[0].Status != domain.StepCompensated {
		t.Fatalf("first step is %s", steps[0].Status)
	}
}

func TestOrchestratorHonoursCancelAtBoundary(t *testing.T) {
	exec := newScriptedExecutor()
	var cancelled bool
	txn := testTxn()
	steps := testSteps(txn.ID, "first")

	// flip the flag after the first step so the next boundary check sees it
	wrapped := &boundaryCancelExecutor{inner: exec, after: "first", flip: func() { cancelled = true }}
	o := NewOrchestrator(newMemSagas(), wrapped, func(string) bool { return cancelled }, nil)

	err := o.Run(context.Background(), txn, steps)
	if !errors.Is(err, ErrSagaCancelled) {
		t.Fatalf("expected ErrSagaCancelled, got %v", err)
	}
	if steps[0].Status != domain.StepCompensated {
		t.Fatalf("first step should be compensated, got %s", steps[0].Status)
	}
	if steps[1].Status != domain.StepPending {
		t.Fatalf("second step must not run, got %s", steps[1].Status)
	}
}

// boundaryCancelExecutor flips a flag after a named step completes so the
// next boundary check sees the cancellation.
type boundaryCancelExecutor struct {
	inner *scriptedExecutor
	after string
	flip  func()
}

func (b *boundaryCancelExecutor) Execute(ctx context.Context, txn *domain.Transaction, step *domain.SagaStep) domain.ProviderResult {
	res := b.inner.Execute(ctx, txn, step)
	if step.Name == b.after {
		b.flip()
	}
	return res
}

func (b *boundaryCancelExecutor) Compensate(ctx context.Context, txn *domain.Transaction, step *domain.SagaStep) domain.ProviderResult {
	return b.inner.Compensate(ctx, txn, step)
}

func TestCashoutPayoutFailureCompensatesHold(t *testing.T) {
	h := newHarness(t)
	h.ledger.fund(5, decimal.RequireFromString("50"), "USD")
	h.payment.failWith = &domain.ProviderResult{
		Success:     false,
		Status:      domain.ProviderPermanentError,
		ErrorCode:   "payout_rejected",
		Message:     "destination blocked",
		IsRetryable: false,
		Provider:    "fake_rail",
	}

	result, err := h.eng.CreateTransaction(context.Background(), &domain.CreateTransactionRequest{
		Type:     domain.TypeWalletCashout,
		UserID:   5,
		Amount:   decimal.RequireFromString("20"),
		Currency: "USD",
		Metadata: map[string]interface{}{"destination_address": "blocked"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.eng.Wait()

	txn, _ := h.eng.GetTransaction(context.Background(), result.TransactionID)
	if txn.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", txn.Status)
	}

	// hold released, no money moved
	if got := h.ledger.available(5, "USD"); !got.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("balance not restored: %s", got)
	}
	if got := h.ledger.heldBalance(5, "USD"); !got.IsZero() {
		t.Fatalf("hold not released: %s", got)
	}

	byName := make(map[string]*domain.SagaStep)
	for _, step := range h.sagas.all() {
		byName[step.Name] = step
	}
	if byName["hold funds"].Status != domain.StepCompensated {
		t.Fatalf("hold step is %s", byName["hold funds"].Status)
	}
	if byName["external payout"].Status != domain.StepFailed {
		t.Fatalf("payout step is %s", byName["external payout"].Status)
	}
	if byName["consume held funds"].Status != domain.StepPending {
		t.Fatalf("consume step ran: %s", byName["consume held funds"].Status)
	}

	events := h.outbox.byType("transaction.failed")
	if len(events) != 1 {
		t.Fatalf("expected a failure outbox event, got %d", len(events))
	}
}

func TestCashoutInsufficientFundsFailsFast(t *testing.T) {
	h := newHarness(t)
	h.ledger.fund(5, decimal.RequireFromString("10"), "USD")

	result, err := h.eng.CreateTransaction(context.Background(), &domain.CreateTransactionRequest{
		Type:     domain.TypeWalletCashout,
		UserID:   5,
		Amount:   decimal.RequireFromString("100"),
		Currency: "USD",
		Metadata: map[string]interface{}{"destination_address": "addr"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.eng.Wait()

	txn, _ := h.eng.GetTransaction(context.Background(), result.TransactionID)
	if txn.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", txn.Status)
	}
	if len(h.payment.withdrawals) != 0 {
		t.Fatal("payout must not run when the balance check fails")
	}
	// nothing was held, nothing to release
	if got := h.ledger.available(5, "USD"); !got.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("balance changed: %s", got)
	}
}

func TestExchangeBuyConvertsAtSeededRate(t *testing.T) {
	h := newHarness(t)
	h.ledger.fund(8, decimal.RequireFromString("100"), "USD")

	result, err := h.eng.CreateTransaction(context.Background(), &domain.CreateTransactionRequest{
		Type:     domain.TypeExchangeBuy,
		UserID:   8,
		Amount:   decimal.RequireFromString("50"),
		Currency: "USD",
		Metadata: map[string]interface{}{"target_currency": "EUR"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.eng.Wait()

	txn, _ := h.eng.GetTransaction(context.Background(), result.TransactionID)
	if txn.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", txn.Status)
	}
	if got := h.ledger.available(8, "USD"); !got.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("USD balance: %s", got)
	}
	if got := h.ledger.available(8, "EUR"); !got.Equal(decimal.RequireFromString("45")) {
		t.Fatalf("EUR balance: %s, want 45", got)
	}
}

func TestExchangeWithoutTargetCurrencyFails(t *testing.T) {
	h := newHarness(t)
	h.ledger.fund(8, decimal.RequireFromString("100"), "USD")

	result, err := h.eng.CreateTransaction(context.Background(), &domain.CreateTransactionRequest{
		Type:     domain.TypeExchangeSell,
		UserID:   8,
		Amount:   decimal.RequireFromString("50"),
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.eng.Wait()

	txn, _ := h.eng.GetTransaction(context.Background(), result.TransactionID)
	if txn.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", txn.Status)
	}
	// rate lock fails before any ledger movement
	if got := h.ledger.available(8, "USD"); !got.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("balance changed: %s", got)
	}
}

func TestBuildPlanUnknownTypeRejected(t *testing.T) {
	txn := testTxn()
	txn.Type = domain.TypeGeneric

	_, err := BuildPlan(txn)
	if err == nil {
		t.Fatal("expected an error for a type without a plan")
	}
	var engineErr *domain.EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("wrong error type: %T", err)
	}
}

func TestBuildPlanChainsDependencies(t *testing.T) {
	txn := testTxn()
	steps, err := BuildPlan(txn)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(steps))
	}
	if steps[0].DependsOn != nil {
		t.Fatal("first step must have no dependencies")
	}
	for i := 1; i < len(steps); i++ {
		if len(steps[i].DependsOn) != 1 || steps[i].DependsOn[0] != steps[i-1].ID {
			t.Fatalf("step %d dependency chain broken", i)
		}
	}
	if !steps[1].Compensatable() {
		t.Fatal("hold step must be compensatable")
	}
	if steps[2].Compensatable() {
		t.Fatal("payout step must not be compensatable")
	}
}

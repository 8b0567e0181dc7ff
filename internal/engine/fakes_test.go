package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/provider"
	"escrow_engine/internal/state"

	"github.com/shopspring/decimal"
)

// in-memory Store
type memStore struct {
	mu      sync.Mutex
	txns    map[string]*domain.Transaction
	history map[string][]*domain.StatusHistoryEntry
	events  []*domain.EngineEvent
	outbox  *memOutbox
}

func newMemStore(outbox *memOutbox) *memStore {
	return &memStore{
		txns:    make(map[string]*domain.Transaction),
		history: make(map[string][]*domain.StatusHistoryEntry),
		outbox:  outbox,
	}
}

func (s *memStore) CreateTransaction(_ context.Context, txn *domain.Transaction,
	history *domain.StatusHistoryEntry, event *domain.EngineEvent, outbox *domain.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *txn
	s.txns[txn.ID] = &cp
	s.history[txn.ID] = append(s.history[txn.ID], history)
	s.events = append(s.events, event)
	if outbox != nil {
		s.outbox.add(outbox)
	}
	return nil
}

func (s *memStore) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *txn
	return &cp, nil
}

func (s *memStore) ListTransactionsByUser(_ context.Context, userID int64, _ int) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.Transaction
	for _, txn := range s.txns {
		if txn.UserID == userID {
			cp := *txn
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *memStore) ApplyTransition(_ context.Context, t Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txns[t.TransactionID]
	if !ok {
		return false, domain.ErrTransactionNotFound
	}
	if txn.Status != t.From {
		return false, nil
	}
	txn.Status = t.To
	txn.UpdatedAt = time.Now().UTC()
	from := t.From
	s.history[t.TransactionID] = append(s.history[t.TransactionID], &domain.StatusHistoryEntry{
		TransactionID: t.TransactionID,
		FromStatus:    &from,
		ToStatus:      t.To,
		Reason:        t.Reason,
		CreatedAt:     time.Now().UTC(),
	})
	if t.Event != nil {
		s.events = append(s.events, t.Event)
	}
	if t.Outbox != nil {
		s.outbox.add(t.Outbox)
	}
	return true, nil
}

func (s *memStore) GetStatusHistory(_ context.Context, id string) ([]*domain.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.StatusHistoryEntry(nil), s.history[id]...), nil
}

func (s *memStore) AppendEngineEvent(_ context.Context, event *domain.EngineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) seed(txn *domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *txn
	s.txns[txn.ID] = &cp
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

// in-memory OutboxStore
type memOutbox struct {
	mu     sync.Mutex
	events []*domain.OutboxEvent
}

func newMemOutbox() *memOutbox { return &memOutbox{} }

func (o *memOutbox) add(event *domain.OutboxEvent) {
	cp := *event
	o.events = append(o.events, &cp)
}

func (o *memOutbox) CreateOutboxEvent(_ context.Context, event *domain.OutboxEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.add(event)
	return nil
}

func (o *memOutbox) GetDueEvents(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now().UTC()
	var due []*domain.OutboxEvent
	for _, e := range o.events {
		if e.Status == domain.OutboxPending && !e.ScheduledAt.After(now) {
			due = append(due, e)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (o *memOutbox) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.events {
		if e.ID == id && e.Status == domain.OutboxPending {
			e.Status = domain.OutboxPublished
			e.PublishedAt = &publishedAt
		}
	}
	return nil
}

func (o *memOutbox) MarkFailed(_ context.Context, id string, lastError string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range o.events {
		if e.ID == id && e.Status == domain.OutboxPending {
			e.Attempts++
			e.LastError = lastError
			if e.Attempts >= 5 {
				e.Status = domain.OutboxFailed
			}
		}
	}
	return nil
}

func (o *memOutbox) byType(eventType string) []*domain.OutboxEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var result []*domain.OutboxEvent
	for _, e := range o.events {
		if e.EventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

// in-memory InboxStore
type memInbox struct {
	mu       sync.Mutex
	webhooks map[string]*domain.InboxWebhook
}

func newMemInbox() *memInbox {
	return &memInbox{webhooks: make(map[string]*domain.InboxWebhook)}
}

func (i *memInbox) InsertWebhook(_ context.Context, w *domain.InboxWebhook) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, exists := i.webhooks[w.WebhookID]; exists {
		return false, nil
	}
	cp := *w
	i.webhooks[w.WebhookID] = &cp
	return true, nil
}

func (i *memInbox) MarkProcessed(_ context.Context, webhookID, result string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if w, ok := i.webhooks[webhookID]; ok {
		w.Status = domain.InboxProcessed
		w.Result = result
	}
	return nil
}

func (i *memInbox) MarkFailed(_ context.Context, webhookID, errMsg string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if w, ok := i.webhooks[webhookID]; ok {
		w.Status = domain.InboxFailed
		w.ErrorMsg = errMsg
	}
	return nil
}

func (i *memInbox) GetWebhook(_ context.Context, webhookID string) (*domain.InboxWebhook, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	w, ok := i.webhooks[webhookID]
	if !ok {
		return nil, fmt.Errorf("webhook %s not found", webhookID)
	}
	cp := *w
	return &cp, nil
}

// in-memory SagaStore
type memSagas struct {
	mu    sync.Mutex
	steps map[string][]*domain.SagaStep
}

func newMemSagas() *memSagas {
	return &memSagas{steps: make(map[string][]*domain.SagaStep)}
}

func (s *memSagas) CreateSteps(_ context.Context, steps []*domain.SagaStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range steps {
		s.steps[step.SagaID] = append(s.steps[step.SagaID], step)
	}
	return nil
}

func (s *memSagas) UpdateStep(_ context.Context, _ *domain.SagaStep) error {
	// steps are shared pointers in this fake; mutation is the update
	return nil
}

func (s *memSagas) GetSteps(_ context.Context, sagaID string) ([]*domain.SagaStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.SagaStep(nil), s.steps[sagaID]...), nil
}

func (s *memSagas) all() []*domain.SagaStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domain.SagaStep
	for _, batch := range s.steps {
		result = append(result, batch...)
	}
	return result
}

// in-memory Ledger
type memLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	held     map[string]decimal.Decimal
}

func newMemLedger() *memLedger {
	return &memLedger{
		balances: make(map[string]decimal.Decimal),
		held:     make(map[string]decimal.Decimal),
	}
}

func key(userID int64, currency string) string {
	return fmt.Sprintf("%d/%s", userID, currency)
}

func (l *memLedger) fund(userID int64, amount decimal.Decimal, currency string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(userID, currency)
	l.balances[k] = l.balances[k].Add(amount)
}

func (l *memLedger) Available(_ context.Context, userID int64, currency string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[key(userID, currency)], nil
}

func (l *memLedger) Hold(_ context.Context, userID int64, amount decimal.Decimal, currency, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(userID, currency)
	if l.balances[k].LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	l.balances[k] = l.balances[k].Sub(amount)
	l.held[k] = l.held[k].Add(amount)
	return nil
}

func (l *memLedger) ReleaseHold(_ context.Context, userID int64, amount decimal.Decimal, currency, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(userID, currency)
	if l.held[k].LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	l.held[k] = l.held[k].Sub(amount)
	l.balances[k] = l.balances[k].Add(amount)
	return nil
}

func (l *memLedger) ConsumeHold(_ context.Context, userID int64, amount decimal.Decimal, currency, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(userID, currency)
	if l.held[k].LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	l.held[k] = l.held[k].Sub(amount)
	return nil
}

func (l *memLedger) Debit(_ context.Context, userID int64, amount decimal.Decimal, currency, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(userID, currency)
	if l.balances[k].LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	l.balances[k] = l.balances[k].Sub(amount)
	return nil
}

func (l *memLedger) Credit(_ context.Context, userID int64, amount decimal.Decimal, currency, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(userID, currency)
	l.balances[k] = l.balances[k].Add(amount)
	return nil
}

func (l *memLedger) available(userID int64, currency string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[key(userID, currency)]
}

func (l *memLedger) heldBalance(userID int64, currency string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key(userID, currency)]
}

// fake payment provider
type fakePayment struct {
	mu          sync.Mutex
	name        string
	withdrawals []provider.WithdrawalRequest
	failWith    *domain.ProviderResult // nil means succeed
}

func (p *fakePayment) Name() string { return p.name }

func (p *fakePayment) ValidateAddress(_ context.Context, _, _ string) domain.ProviderResult {
	return domain.OK(p.name, "valid", nil)
}

func (p *fakePayment) GetBalance(_ context.Context, _ string) domain.ProviderResult {
	return domain.OK(p.name, "balance", nil)
}

func (p *fakePayment) EstimateFees(_ context.Context, _ decimal.Decimal, _ string) domain.ProviderResult {
	return domain.OK(p.name, "fees", nil)
}

func (p *fakePayment) CreateWithdrawal(_ context.Context, req provider.WithdrawalRequest) domain.ProviderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return *p.failWith
	}
	p.withdrawals = append(p.withdrawals, req)
	return domain.OK(p.name, "withdrawal created", map[string]interface{}{"ref": "ext-1"})
}

func (p *fakePayment) CheckWithdrawalStatus(_ context.Context, _ string) domain.ProviderResult {
	return domain.OK(p.name, "completed", nil)
}

func (p *fakePayment) GenerateDepositAddress(_ context.Context, _ int64, _ string) domain.ProviderResult {
	return domain.OK(p.name, "address generated", map[string]interface{}{"address": "addr-1"})
}

func (p *fakePayment) ProcessWebhook(_ context.Context, _ string, _ map[string]interface{}) domain.ProviderResult {
	return domain.OK(p.name, "processed", nil)
}

// fake notifier
type fakeNotifier struct {
	mu   sync.Mutex
	sent []provider.Notification
}

func (n *fakeNotifier) Name() string { return "fake_notifier" }

func (n *fakeNotifier) SendNotification(_ context.Context, msg provider.Notification) domain.ProviderResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return domain.OK(n.Name(), "sent", nil)
}

func (n *fakeNotifier) SendBulkNotification(ctx context.Context, msgs []provider.Notification) domain.ProviderResult {
	for _, m := range msgs {
		n.SendNotification(ctx, m)
	}
	return domain.OK(n.Name(), "sent", nil)
}

func (n *fakeNotifier) CheckDeliveryStatus(_ context.Context, _ string) domain.ProviderResult {
	return domain.OK(n.Name(), "delivered", nil)
}

// event sink capturing published events
type fakeSink struct {
	mu     sync.Mutex
	events []*domain.EngineEvent
}

func (s *fakeSink) PublishEvent(event *domain.EngineEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// test harness bundling the engine with its fakes
type harness struct {
	eng     *Engine
	store   *memStore
	outbox  *memOutbox
	inbox   *memInbox
	sagas   *memSagas
	ledger  *memLedger
	payment *fakePayment
	sink    *fakeSink
}

func newHarness(t interface{ Fatalf(string, ...any) }) *harness {
	outbox := newMemOutbox()
	store := newMemStore(outbox)
	inbox := newMemInbox()
	sagas := newMemSagas()
	ledger := newMemLedger()
	payment := &fakePayment{name: "fake_rail"}
	sink := &fakeSink{}

	rates := provider.NewMemoryRates(map[string]decimal.Decimal{
		"USD/EUR": decimal.RequireFromString("0.9"),
	})

	providers := provider.NewRegistry().
		RegisterPayment(payment).
		RegisterRates(rates).
		RegisterNotifier(&fakeNotifier{})

	eng, err := New(Config{
		Store:     store,
		Outbox:    outbox,
		Inbox:     inbox,
		Sagas:     sagas,
		States:    state.NewService(),
		Providers: providers,
		Ledger:    ledger,
		Locks:     NewMemoryLocker(),
		Sink:      sink,
	})
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	return &harness{
		eng: eng, store: store, outbox: outbox, inbox: inbox,
		sagas: sagas, ledger: ledger, payment: payment, sink: sink,
	}
}

// Package provider defines the external-provider contracts the engine and
// saga steps call into, plus the registry that holds the configured set.
package provider

import (
	"context"
	"fmt"

	"escrow_engine/internal/domain"

	"github.com/shopspring/decimal"
)

// WithdrawalRequest describes an external payout.
type WithdrawalRequest struct {
	TransactionID string
	UserID        int64
	Address       string
	Amount        decimal.Decimal
	Currency      string
	Reference     string
}

// Notification is a message for a user.
type Notification struct {
	UserID   int64
	ChatID   int64
	Subject  string
	Body     string
	Metadata map[string]interface{}
}

// PaymentProvider executes money movement on an external rail.
// Every method returns the uniform result envelope so the saga orchestrator
// can treat all backends identically.
type PaymentProvider interface {
	Name() string
	ValidateAddress(ctx context.Context, address, currency string) domain.ProviderResult
	GetBalance(ctx context.Context, currency string) domain.ProviderResult
	EstimateFees(ctx context.Context, amount decimal.Decimal, currency string) domain.ProviderResult
	CreateWithdrawal(ctx context.Context, req WithdrawalRequest) domain.ProviderResult
	CheckWithdrawalStatus(ctx context.Context, externalRef string) domain.ProviderResult
	GenerateDepositAddress(ctx context.Context, userID int64, currency string) domain.ProviderResult
	ProcessWebhook(ctx context.Context, eventType string, payload map[string]interface{}) domain.ProviderResult
}

// RateProvider serves exchange rates.
type RateProvider interface {
	Name() string
	GetExchangeRate(ctx context.Context, base, quote string) domain.ProviderResult
	GetMultipleRates(ctx context.Context, base string, quotes []string) domain.ProviderResult
	ConvertAmount(ctx context.Context, amount decimal.Decimal, base, quote string) domain.ProviderResult
	GetRateWithMarkup(ctx context.Context, base, quote string, markupPercent decimal.Decimal) domain.ProviderResult
}

// NotificationProvider delivers user notifications.
type NotificationProvider interface {
	Name() string
	SendNotification(ctx context.Context, n Notification) domain.ProviderResult
	SendBulkNotification(ctx context.Context, ns []Notification) domain.ProviderResult
	CheckDeliveryStatus(ctx context.Context, externalRef string) domain.ProviderResult
}

// Registry holds the configured provider set. It is built once at process
// start and passed into the engine; there is no ambient global registry.
type Registry struct {
	payments        map[string]PaymentProvider
	rates           map[string]RateProvider
	notifiers       map[string]NotificationProvider
	defaultPayment  string
	defaultRates    string
	defaultNotifier string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		payments:  make(map[string]PaymentProvider),
		rates:     make(map[string]RateProvider),
		notifiers: make(map[string]NotificationProvider),
	}
}

// RegisterPayment adds a payment provider; the first registered becomes the default.
func (r *Registry) RegisterPayment(p PaymentProvider) *Registry {
	r.payments[p.Name()] = p
	if r.defaultPayment == "" {
		r.defaultPayment = p.Name()
	}
	return r
}

// RegisterRates adds a rate provider; the first registered becomes the default.
func (r *Registry) RegisterRates(p RateProvider) *Registry {
	r.rates[p.Name()] = p
	if r.defaultRates == "" {
		r.defaultRates = p.Name()
	}
	return r
}

// RegisterNotifier adds a notification provider; the first registered becomes the default.
func (r *Registry) RegisterNotifier(p NotificationProvider) *Registry {
	r.notifiers[p.Name()] = p
	if r.defaultNotifier == "" {
		r.defaultNotifier = p.Name()
	}
	return r
}

// Payment returns the named payment provider, or the default when name is empty.
func (r *Registry) Payment(name string) (PaymentProvider, error) {
	if name == "" {
		name = r.defaultPayment
	}
	p, ok := r.payments[name]
	if !ok {
		return nil, fmt.Errorf("%w: payment %q", domain.ErrUnknownProvider, name)
	}
	return p, nil
}

// Rates returns the named rate provider, or the default when name is empty.
func (r *Registry) Rates(name string) (RateProvider, error) {
	if name == "" {
		name = r.defaultRates
	}
	p, ok := r.rates[name]
	if !ok {
		return nil, fmt.Errorf("%w: rates %q", domain.ErrUnknownProvider, name)
	}
	return p, nil
}

// Notifier returns the named notification provider, or the default when name is empty.
func (r *Registry) Notifier(name string) (NotificationProvider, error) {
	if name == "" {
		name = r.defaultNotifier
	}
	p, ok := r.notifiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: notifier %q", domain.ErrUnknownProvider, name)
	}
	return p, nil
}

package provider

import (
	"context"
	"errors"
	"testing"

	"escrow_engine/internal/domain"

	"github.com/shopspring/decimal"
)

type stubPayment struct{ name string }

func (p *stubPayment) Name() string { return p.name }
func (p *stubPayment) ValidateAddress(context.Context, string, string) domain.ProviderResult {
	return domain.OK(p.name, "ok", nil)
}
func (p *stubPayment) GetBalance(context.Context, string) domain.ProviderResult {
	return domain.OK(p.name, "ok", nil)
}
func (p *stubPayment) EstimateFees(context.Context, decimal.Decimal, string) domain.ProviderResult {
	return domain.OK(p.name, "ok", nil)
}
func (p *stubPayment) CreateWithdrawal(context.Context, WithdrawalRequest) domain.ProviderResult {
	return domain.OK(p.name, "ok", nil)
}
func (p *stubPayment) CheckWithdrawalStatus(context.Context, string) domain.ProviderResult {
	return domain.OK(p.name, "ok", nil)
}
func (p *stubPayment) GenerateDepositAddress(context.Context, int64, string) domain.ProviderResult {
	return domain.OK(p.name, "ok", nil)
}
func (p *stubPayment) ProcessWebhook(context.Context, string, map[string]interface{}) domain.ProviderResult {
	return domain.OK(p.name, "ok", nil)
}

func TestRegistryFirstRegisteredIsDefault(t *testing.T) {
	r := NewRegistry().
		RegisterPayment(&stubPayment{name: "rail_a"}).
		RegisterPayment(&stubPayment{name: "rail_b"})

	p, err := r.Payment("")
	if err != nil {
		t.Fatalf("default lookup: %v", err)
	}
	if p.Name() != "rail_a" {
		t.Fatalf("default is %q, want rail_a", p.Name())
	}
}

func TestRegistryNamedLookup(t *testing.T) {
	r := NewRegistry().
		RegisterPayment(&stubPayment{name: "rail_a"}).
		RegisterPayment(&stubPayment{name: "rail_b"})

	p, err := r.Payment("rail_b")
	if err != nil {
		t.Fatalf("named lookup: %v", err)
	}
	if p.Name() != "rail_b" {
		t.Fatalf("got %q", p.Name())
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry().RegisterPayment(&stubPayment{name: "rail_a"})

	_, err := r.Payment("missing")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("wrong error: %v", err)
	}
}

func TestRegistryEmptyHasNoDefault(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Payment(""); err == nil {
		t.Fatal("empty registry must fail the default lookup")
	}
	if _, err := r.Rates(""); err == nil {
		t.Fatal("empty registry must fail the rates lookup")
	}
	if _, err := r.Notifier(""); err == nil {
		t.Fatal("empty registry must fail the notifier lookup")
	}
}

func TestRegistryRatesDefault(t *testing.T) {
	r := NewRegistry().RegisterRates(NewMemoryRates(nil))
	p, err := r.Rates("")
	if err != nil {
		t.Fatalf("default lookup: %v", err)
	}
	if p.Name() != "memory_rates" {
		t.Fatalf("got %q", p.Name())
	}
}

package provider

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func seededRates() *MemoryRates {
	return NewMemoryRates(map[string]decimal.Decimal{
		"USD/EUR": decimal.RequireFromString("0.9"),
		"USD/GBP": decimal.RequireFromString("0.8"),
	})
}

func TestMemoryRatesSeededPair(t *testing.T) {
	m := seededRates()
	res := m.GetExchangeRate(context.Background(), "USD", "EUR")
	if !res.Success {
		t.Fatalf("result %+v", res)
	}
	if res.Data["rate"] != "0.9" {
		t.Fatalf("rate %v", res.Data["rate"])
	}
}

func TestMemoryRatesIdentityPair(t *testing.T) {
	m := seededRates()
	res := m.GetExchangeRate(context.Background(), "USD", "USD")
	if !res.Success || res.Data["rate"] != "1" {
		t.Fatalf("result %+v", res)
	}
}

func TestMemoryRatesDerivesInverse(t *testing.T) {
	m := seededRates()
	res := m.GetExchangeRate(context.Background(), "GBP", "USD")
	if !res.Success {
		t.Fatalf("result %+v", res)
	}
	rate, err := decimal.NewFromString(res.Data["rate"].(string))
	if err != nil {
		t.Fatalf("bad rate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("inverse rate %s, want 1.25", rate)
	}
}

func TestMemoryRatesUnknownPair(t *testing.T) {
	m := seededRates()
	res := m.GetExchangeRate(context.Background(), "USD", "JPY")
	if res.Success {
		t.Fatalf("result %+v", res)
	}
	if res.ErrorCode != "unknown_pair" {
		t.Fatalf("error code %q", res.ErrorCode)
	}
	if res.IsRetryable {
		t.Fatal("a missing pair is not retryable")
	}
}

func TestMemoryRatesConvertAmount(t *testing.T) {
	m := seededRates()
	res := m.ConvertAmount(context.Background(), decimal.RequireFromString("50"), "USD", "EUR")
	if !res.Success {
		t.Fatalf("result %+v", res)
	}
	if res.Data["converted"] != "45" {
		t.Fatalf("converted %v, want 45", res.Data["converted"])
	}
}

func TestMemoryRatesMarkup(t *testing.T) {
	m := seededRates()
	res := m.GetRateWithMarkup(context.Background(), "USD", "EUR", decimal.RequireFromString("10"))
	if !res.Success {
		t.Fatalf("result %+v", res)
	}
	marked, err := decimal.NewFromString(res.Data["marked_up_rate"].(string))
	if err != nil {
		t.Fatalf("bad rate: %v", err)
	}
	if !marked.Equal(decimal.RequireFromString("0.99")) {
		t.Fatalf("marked up rate %s, want 0.99", marked)
	}
}

func TestMemoryRatesSetRateOverrides(t *testing.T) {
	m := seededRates()
	m.SetRate("USD", "EUR", decimal.RequireFromString("0.95"))
	res := m.GetExchangeRate(context.Background(), "USD", "EUR")
	if res.Data["rate"] != "0.95" {
		t.Fatalf("rate %v", res.Data["rate"])
	}
}

func TestMemoryRatesMultiple(t *testing.T) {
	m := seededRates()
	res := m.GetMultipleRates(context.Background(), "USD", []string{"EUR", "GBP"})
	if !res.Success {
		t.Fatalf("result %+v", res)
	}
	rates := res.Data["rates"].(map[string]interface{})
	if rates["EUR"] != "0.9" || rates["GBP"] != "0.8" {
		t.Fatalf("rates %v", rates)
	}

	res = m.GetMultipleRates(context.Background(), "USD", []string{"EUR", "JPY"})
	if res.Success {
		t.Fatal("expected failure on an unknown quote")
	}
}

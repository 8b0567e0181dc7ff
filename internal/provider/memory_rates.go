package provider

import (
	"context"
	"fmt"
	"sync"

	"escrow_engine/internal/domain"

	"github.com/shopspring/decimal"
)

// MemoryRates serves exchange rates from an in-memory table. Used for
// development and as the rates backend when no external rates API is
// configured.
type MemoryRates struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal // "BASE/QUOTE" -> rate
}

// NewMemoryRates creates a rates provider seeded with the given table.
func NewMemoryRates(seed map[string]decimal.Decimal) *MemoryRates {
	rates := make(map[string]decimal.Decimal, len(seed))
	for pair, rate := range seed {
		rates[pair] = rate
	}
	return &MemoryRates{rates: rates}
}

func (m *MemoryRates) Name() string { return "memory_rates" }

// SetRate updates one pair.
func (m *MemoryRates) SetRate(base, quote string, rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[base+"/"+quote] = rate
}

func (m *MemoryRates) rate(base, quote string) (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if base == quote {
		return decimal.NewFromInt(1), true
	}
	if r, ok := m.rates[base+"/"+quote]; ok {
		return r, true
	}
	// derive the inverse pair when only one direction is seeded
	if r, ok := m.rates[quote+"/"+base]; ok && !r.IsZero() {
		return decimal.NewFromInt(1).Div(r), true
	}
	return decimal.Decimal{}, false
}

func (m *MemoryRates) GetExchangeRate(_ context.Context, base, quote string) domain.ProviderResult {
	r, ok := m.rate(base, quote)
	if !ok {
		return domain.Fail(m.Name(), "unknown_pair",
			fmt.Sprintf("no rate for %s/%s", base, quote), false)
	}
	return domain.OK(m.Name(), "rate found", map[string]interface{}{
		"base": base, "quote": quote, "rate": r.String(),
	})
}

func (m *MemoryRates) GetMultipleRates(ctx context.Context, base string, quotes []string) domain.ProviderResult {
	out := make(map[string]interface{}, len(quotes))
	for _, q := range quotes {
		r, ok := m.rate(base, q)
		if !ok {
			return domain.Fail(m.Name(), "unknown_pair",
				fmt.Sprintf("no rate for %s/%s", base, q), false)
		}
		out[q] = r.String()
	}
	return domain.OK(m.Name(), "rates found", map[string]interface{}{
		"base": base, "rates": out,
	})
}

func (m *MemoryRates) ConvertAmount(_ context.Context, amount decimal.Decimal, base, quote string) domain.ProviderResult {
	r, ok := m.rate(base, quote)
	if !ok {
		return domain.Fail(m.Name(), "unknown_pair",
			fmt.Sprintf("no rate for %s/%s", base, quote), false)
	}
	return domain.OK(m.Name(), "converted", map[string]interface{}{
		"base": base, "quote": quote,
		"rate":      r.String(),
		"amount":    amount.String(),
		"converted": amount.Mul(r).String(),
	})
}

func (m *MemoryRates) GetRateWithMarkup(_ context.Context, base, quote string, markupPercent decimal.Decimal) domain.ProviderResult {
	r, ok := m.rate(base, quote)
	if !ok {
		return domain.Fail(m.Name(), "unknown_pair",
			fmt.Sprintf("no rate for %s/%s", base, quote), false)
	}
	factor := decimal.NewFromInt(1).Add(markupPercent.Div(decimal.NewFromInt(100)))
	return domain.OK(m.Name(), "rate with markup", map[string]interface{}{
		"base": base, "quote": quote,
		"rate":           r.String(),
		"markup_percent": markupPercent.String(),
		"marked_up_rate": r.Mul(factor).String(),
	})
}

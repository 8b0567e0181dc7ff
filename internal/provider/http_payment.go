package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"escrow_engine/internal/domain"

	"github.com/shopspring/decimal"
)

// HTTPPayment talks to a REST payment rail. Server errors and transport
// failures are reported as retryable; 4xx responses are permanent.
type HTTPPayment struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPPayment creates a payment provider for a REST rail.
func NewHTTPPayment(name, baseURL, apiKey string) *HTTPPayment {
	return &HTTPPayment{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *HTTPPayment) Name() string { return p.name }

type railResponse struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	Reference string                 `json:"reference"`
	Data      map[string]interface{} `json:"data"`
}

func (p *HTTPPayment) call(ctx context.Context, method, path string, body interface{}) domain.ProviderResult {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return domain.Fail(p.name, "encode_error", err.Error(), false)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return domain.Fail(p.name, "request_error", err.Error(), false)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ProviderResult{
				Status: domain.ProviderTimeout, Message: ctx.Err().Error(),
				ErrorCode: "timeout", IsRetryable: true, Provider: p.name,
			}
		}
		return domain.Fail(p.name, "transport_error", err.Error(), true)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		return domain.Fail(p.name, "rail_unavailable",
			fmt.Sprintf("rail error: %s", resp.Status), true)
	}
	if resp.StatusCode >= 400 {
		return domain.Fail(p.name, "rail_rejected",
			fmt.Sprintf("rail rejected request: %s - %s", resp.Status, string(raw)), false)
	}

	var rr railResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return domain.Fail(p.name, "decode_error", err.Error(), false)
	}

	if rr.Status == "pending" {
		return domain.ProviderResult{
			Success: true, Status: domain.ProviderPending, Message: rr.Message,
			Data: rr.Data, ExternalReference: rr.Reference, Provider: p.name,
		}
	}

	res := domain.OK(p.name, rr.Message, rr.Data)
	res.ExternalReference = rr.Reference
	return res
}

func (p *HTTPPayment) ValidateAddress(ctx context.Context, address, currency string) domain.ProviderResult {
	return p.call(ctx, http.MethodPost, "/addresses/validate", map[string]string{
		"address": address, "currency": currency,
	})
}

func (p *HTTPPayment) GetBalance(ctx context.Context, currency string) domain.ProviderResult {
	return p.call(ctx, http.MethodGet, "/balance?currency="+currency, nil)
}

func (p *HTTPPayment) EstimateFees(ctx context.Context, amount decimal.Decimal, currency string) domain.ProviderResult {
	return p.call(ctx, http.MethodPost, "/fees/estimate", map[string]string{
		"amount": amount.String(), "currency": currency,
	})
}

func (p *HTTPPayment) CreateWithdrawal(ctx context.Context, req WithdrawalRequest) domain.ProviderResult {
	return p.call(ctx, http.MethodPost, "/withdrawals", map[string]interface{}{
		"transaction_id": req.TransactionID,
		"user_id":        req.UserID,
		"address":        req.Address,
		"amount":         req.Amount.String(),
		"currency":       req.Currency,
		"reference":      req.Reference,
	})
}

func (p *HTTPPayment) CheckWithdrawalStatus(ctx context.Context, externalRef string) domain.ProviderResult {
	return p.call(ctx, http.MethodGet, "/withdrawals/"+externalRef, nil)
}

func (p *HTTPPayment) GenerateDepositAddress(ctx context.Context, userID int64, currency string) domain.ProviderResult {
	return p.call(ctx, http.MethodPost, "/deposit-addresses", map[string]interface{}{
		"user_id": userID, "currency": currency,
	})
}

func (p *HTTPPayment) ProcessWebhook(ctx context.Context, eventType string, payload map[string]interface{}) domain.ProviderResult {
	// the rail's webhooks carry their own result; nothing to call back for
	return domain.OK(p.name, "webhook accepted", payload)
}

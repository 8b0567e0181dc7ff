package engine

import (
	"context"
	"fmt"
	"time"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/logger"
)

// WebhookDelivery is one inbound provider notification.
type WebhookDelivery struct {
	Provider  string
	WebhookID string
	EventType string
	Payload   map[string]interface{}
	Headers   map[string]string
	Signature string
}

// ProcessInboxWebhook deduplicates and applies an inbound webhook. The
// RECEIVED row is inserted before any business effect, so a replay of the
// same webhook_id short-circuits even if the first delivery is still in
// flight on another instance.
func (e *Engine) ProcessInboxWebhook(ctx context.Context, d WebhookDelivery) (*domain.WebhookResult, error) {
	if d.WebhookID == "" {
		return &domain.WebhookResult{
			Processed: false,
			Error:     "webhook_id is required",
		}, fmt.Errorf("webhook without id from provider %s", d.Provider)
	}

	inserted, err := e.inbox.InsertWebhook(ctx, &domain.InboxWebhook{
		WebhookID: d.WebhookID,
		Provider:  d.Provider,
		EventType: d.EventType,
		Payload:   d.Payload,
		Headers:   d.Headers,
		Signature: d.Signature,
		Status:    domain.InboxReceived,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return &domain.WebhookResult{
			Processed: false,
			Error:     "failed to record webhook",
		}, fmt.Errorf("insert inbox webhook %s: %w", d.WebhookID, err)
	}
	if !inserted {
		WebhookDuplicatesTotal.Inc()
		logger.Info("duplicate webhook short-circuited",
			"webhook_id", d.WebhookID, "provider", d.Provider, "event_type", d.EventType)
		return &domain.WebhookResult{
			Duplicate: true,
			Processed: false,
			Message:   "duplicate delivery, already recorded",
		}, nil
	}

	result, err := e.applyWebhook(ctx, d)
	if err != nil {
		if mErr := e.inbox.MarkFailed(ctx, d.WebhookID, err.Error()); mErr != nil {
			logger.Error("failed to mark webhook failed", "webhook_id", d.WebhookID, "error", mErr)
		}
		return &domain.WebhookResult{
			Processed: false,
			Error:     err.Error(),
		}, err
	}

	if mErr := e.inbox.MarkProcessed(ctx, d.WebhookID, result); mErr != nil {
		logger.Error("failed to mark webhook processed", "webhook_id", d.WebhookID, "error", mErr)
	}
	return &domain.WebhookResult{
		Processed: true,
		Message:   result,
	}, nil
}

// applyWebhook runs the business effect under the per-transaction lock.
func (e *Engine) applyWebhook(ctx context.Context, d WebhookDelivery) (string, error) {
	txnID, _ := d.Payload["transaction_id"].(string)
	if txnID == "" {
		txnID, _ = d.Payload["reference"].(string)
	}
	if txnID == "" {
		return "", fmt.Errorf("webhook %s carries no transaction reference", d.WebhookID)
	}

	release, err := e.locks.Acquire(ctx, txnID)
	if err != nil {
		return "", fmt.Errorf("lock transaction %s: %w", txnID, err)
	}
	defer release()

	txn, err := e.store.GetTransaction(ctx, txnID)
	if err != nil {
		return "", fmt.Errorf("webhook %s: %w", d.WebhookID, err)
	}

	e.emit(e.record(ctx, txn, nil, domain.EventWebhookReceived, map[string]interface{}{
		"webhook_id": d.WebhookID, "provider": d.Provider, "event_type": d.EventType,
	}))

	switch d.EventType {
	case "payment.confirmed":
		if txn.Status == domain.StatusPaymentConfirmed {
			return "payment already confirmed", nil
		}
		if err := e.transition(ctx, txn, domain.StatusPaymentConfirmed,
			"payment confirmed by "+d.Provider, nil, false); err != nil {
			return "", err
		}
		return "payment confirmed", nil

	case "payout.completed":
		if txn.Status == domain.StatusCompleted {
			return "payout already completed", nil
		}
		if err := e.transition(ctx, txn, domain.StatusCompleted,
			"payout confirmed by "+d.Provider, nil, false); err != nil {
			return "", err
		}
		e.emit(e.record(ctx, txn, nil, domain.EventTransactionCompleted, nil))
		return "payout completed", nil

	case "payout.failed":
		if txn.Status == domain.StatusFailed {
			return "payout already failed", nil
		}
		reason, _ := d.Payload["reason"].(string)
		if reason == "" {
			reason = "payout failed at provider"
		}
		if err := e.transition(ctx, txn, domain.StatusFailed, reason, nil, false); err != nil {
			return "", err
		}
		e.emit(e.record(ctx, txn, nil, domain.EventTransactionFailed,
			map[string]interface{}{"reason": reason}))
		return "payout failure recorded", nil
	}

	logger.Warn("webhook event type has no handler, recorded only",
		"webhook_id", d.WebhookID, "event_type", d.EventType)
	return "recorded without business effect", nil
}

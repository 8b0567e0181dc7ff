package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"escrow_engine/internal/domain"
	"escrow_engine/internal/logger"

	"github.com/redis/go-redis/v9"
)

// Delivery pushes one outbox event to the downstream channel.
type Delivery interface {
	Deliver(ctx context.Context, event *domain.OutboxEvent) error
}

// RedisStreamDelivery appends events to a Redis stream. Consumers read the
// stream with consumer groups; the engine only appends.
type RedisStreamDelivery struct {
	client *redis.Client
	stream string
}

func NewRedisStreamDelivery(client *redis.Client, stream string) *RedisStreamDelivery {
	return &RedisStreamDelivery{client: client, stream: stream}
}

func (d *RedisStreamDelivery) Deliver(ctx context.Context, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	values := map[string]interface{}{
		"event_id":    event.ID,
		"event_type":  event.EventType,
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID,
		"payload":     string(payload),
	}
	if event.TransactionID != nil {
		values["transaction_id"] = *event.TransactionID
	}
	if err := d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", d.stream, err)
	}
	return nil
}

// LogDelivery writes events to the log instead of a broker. Used in tests
// and in environments without Redis.
type LogDelivery struct{}

func (LogDelivery) Deliver(_ context.Context, event *domain.OutboxEvent) error {
	logger.Info("outbox event (log delivery)",
		"event_id", event.ID, "event_type", event.EventType,
		"entity_type", event.EntityType, "entity_id", event.EntityID)
	return nil
}

// Publisher drains the outbox table and delivers pending events. A single
// publisher instance should run per deployment; the due query orders by
// scheduled_at so delivery is oldest-first.
type Publisher struct {
	store    OutboxStore
	delivery Delivery
	interval time.Duration
	batch    int
}

func NewPublisher(store OutboxStore, delivery Delivery, interval time.Duration, batchSize int) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Publisher{store: store, delivery: delivery, interval: interval, batch: batchSize}
}

// ProcessOutboxEvents delivers one batch of due events and returns how many
// were published. Events whose scheduled_at is in the future are not
// returned by the store and stay untouched.
func (p *Publisher) ProcessOutboxEvents(ctx context.Context) (int, error) {
	events, err := p.store.GetDueEvents(ctx, p.batch)
	if err != nil {
		return 0, fmt.Errorf("load due outbox events: %w", err)
	}

	published := 0
	for _, event := range events {
		if err := p.delivery.Deliver(ctx, event); err != nil {
			logger.Error("outbox delivery failed",
				"event_id", event.ID, "event_type", event.EventType,
				"attempts", event.Attempts+1, "error", err)
			OutboxFailedTotal.Inc()
			if mErr := p.store.MarkFailed(ctx, event.ID, err.Error()); mErr != nil {
				logger.Error("failed to record outbox failure", "event_id", event.ID, "error", mErr)
			}
			continue
		}
		if err := p.store.MarkPublished(ctx, event.ID, time.Now().UTC()); err != nil {
			logger.Error("failed to mark outbox event published", "event_id", event.ID, "error", err)
			continue
		}
		OutboxPublishedTotal.Inc()
		published++
	}
	return published, nil
}

// Run polls until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	logger.Info("outbox publisher started", "interval", p.interval, "batch_size", p.batch)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox publisher stopped")
			return
		case <-ticker.C:
			if n, err := p.ProcessOutboxEvents(ctx); err != nil {
				logger.Error("outbox batch failed", "error", err)
			} else if n > 0 {
				logger.Debug("outbox batch published", "count", n)
			}
		}
	}
}

package messaging

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/farmlink/orders-api/metrics"
	"github.com/farmlink/orders-api/models"
)

const (
	baseRetryDelay = 30 * time.Second
	maxRetryDelay  = time.Hour
)

// Message is one broker publication
type Message struct {
	Exchange    string
	RoutingKey  string
	ContentType string
	MessageID   string
	Body        []byte
}

// Publisher delivers messages to the broker
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// OutboxStore is the outbox persistence the worker drains
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error)
	Delete(ctx context.Context, id int64) error
	UpdateRetry(ctx context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error
}

// OutboxWorker publishes due outbox messages on every tick
type OutboxWorker struct {
	store        OutboxStore
	publisher    Publisher
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(store OutboxStore, publisher Publisher, pollInterval time.Duration, batchSize int) *OutboxWorker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxWorker{
		store:        store,
		publisher:    publisher,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		now:          time.Now,
	}
}

// Run polls until ctx is cancelled
func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch publishes one batch of due messages and returns how many were published
func (w *OutboxWorker) ProcessBatch(ctx context.Context) int {
	messages, err := w.store.GetPendingMessages(ctx, w.now(), w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from outbox", "error", err)
		return 0
	}
	if len(messages) == 0 {
		return 0
	}

	slog.Debug("Processing outbox messages", "count", len(messages))

	published := 0
	for _, msg := range messages {
		err := w.publisher.Publish(ctx, Message{
			Exchange:    msg.Exchange,
			RoutingKey:  msg.RoutingKey,
			ContentType: msg.ContentType,
			MessageID:   msg.EventID,
			Body:        msg.Payload,
		})
		if err != nil {
			metrics.OutboxPublished.WithLabelValues("error").Inc()

			retryCount := msg.RetryCount + 1
			nextRetryAt := w.now().UTC().Add(RetryDelay(retryCount))
			slog.Warn("Failed to publish outbox message, will retry",
				"outbox_id", msg.ID,
				"event_id", msg.EventID,
				"retry_count", retryCount,
				"next_retry", nextRetryAt,
				"error", err,
			)
			if err := w.store.UpdateRetry(ctx, msg.ID, retryCount, err.Error(), nextRetryAt); err != nil {
				slog.Error("Failed to update outbox retry information", "outbox_id", msg.ID, "error", err)
			}
			continue
		}

		metrics.OutboxPublished.WithLabelValues("ok").Inc()
		published++
		if err := w.store.Delete(ctx, msg.ID); err != nil {
			// the message will be published again; consumers dedupe on message id
			slog.Error("Failed to delete outbox message after publish", "outbox_id", msg.ID, "error", err)
		}
	}
	return published
}

// RetryDelay is the backoff before the given retry: 30s doubling per retry, capped at one hour
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	delay := float64(baseRetryDelay) * math.Pow(2, float64(retryCount-1))
	if delay > float64(maxRetryDelay) {
		return maxRetryDelay
	}
	return time.Duration(delay)
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/farmlink/orders-api/models"
	"gorm.io/gorm"
)

// OutboxRepository reads and settles pending order events
type OutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// GetPendingMessages returns up to limit messages that are due for publishing at now
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	messages := make([]models.OutboxMessage, 0)
	err := r.db.WithContext(ctx).
		Where("next_retry_at <= ?", now.UTC()).
		Order("id").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending outbox messages: %w", err)
	}
	return messages, nil
}

// Delete removes a published message
func (r *OutboxRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&models.OutboxMessage{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete outbox message %d: %w", id, err)
	}
	return nil
}

// UpdateRetry records a failed publish and schedules the next attempt
func (r *OutboxRepository) UpdateRetry(ctx context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count":   retryCount,
			"last_error":    lastError,
			"next_retry_at": nextRetryAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update outbox message %d: %w", id, err)
	}
	return nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmlink/orders-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when the requested order does not exist
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when the order changed since it was read
	ErrVersionConflict = errors.New("order was modified concurrently")
	// ErrDuplicateEvent is returned when a webhook event id was already recorded
	ErrDuplicateEvent = errors.New("webhook event already processed")
	// ErrInsufficientStock is returned when the product cannot cover the ordered quantity
	ErrInsufficientStock = errors.New("insufficient product stock")
)

// Mutation is one atomic write unit against a single order.
// Either every part is persisted or none is.
type Mutation struct {
	// Order is the new snapshot; nil records only the webhook event
	Order *models.Order
	// ExpectedVersion is the version the snapshot was derived from
	ExpectedVersion int
	// WebhookEvent, when set, is recorded in the processed-event ledger
	WebhookEvent *models.ProcessedWebhookEvent
	// IncrementFarmerOrders bumps the owning farmer's cumulative counter
	IncrementFarmerOrders bool
	// Review is inserted alongside the order update
	Review *models.Review
	// Outbox holds lifecycle events for the broker
	Outbox []models.OutboxMessage
}

// Page selects a slice of a listing
type Page struct {
	Page  int
	Limit int
}

// Offset returns the row offset for the page
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// OrderRepository is the gorm-backed order store
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder reserves product stock and inserts the order with its outbox events
func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order, outbox ...models.OutboxMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Product{}).
			Where("id = ? AND stock >= ?", order.ProductID, order.Quantity).
			UpdateColumn("stock", gorm.Expr("stock - ?", order.Quantity))
		if res.Error != nil {
			return fmt.Errorf("failed to reserve stock: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientStock
		}

		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return insertOutbox(tx, order.ID, outbox)
	})
}

// FindByID loads an order by its id
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// FindByPaymentIntentID loads the order currently bound to a gateway intent
func (r *OrderRepository) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "payment_intent_id = ?", intentID).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// ListByConsumer returns a page of the consumer's orders, newest first
func (r *OrderRepository) ListByConsumer(ctx context.Context, consumerID uint, page Page) ([]models.Order, int64, error) {
	return r.list(ctx, "consumer_id = ?", consumerID, page)
}

// ListByFarmer returns a page of orders placed against the farmer's products, newest first
func (r *OrderRepository) ListByFarmer(ctx context.Context, farmerID uint, page Page) ([]models.Order, int64, error) {
	return r.list(ctx, "farmer_id = ?", farmerID, page)
}

func (r *OrderRepository) list(ctx context.Context, where string, id uint, page Page) ([]models.Order, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Order{}).Where(where, id)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	orders := make([]models.Order, 0)
	if err := db.Order("created_at DESC").Order("id").Offset(page.Offset()).Limit(page.Limit).Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// EventProcessed reports whether a webhook event id is already in the ledger
func (r *OrderRepository) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProcessedWebhookEvent{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check webhook ledger: %w", err)
	}
	return count > 0, nil
}

// Apply persists a mutation in a single transaction.
// The order update only succeeds if the stored version still equals ExpectedVersion.
func (r *OrderRepository) Apply(ctx context.Context, m Mutation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.WebhookEvent != nil {
			if err := recordEvent(tx, m.WebhookEvent); err != nil {
				return err
			}
		}

		if m.Order == nil {
			return nil
		}

		m.Order.Version = m.ExpectedVersion + 1
		res := tx.Model(m.Order).
			Where("version = ?", m.ExpectedVersion).
			Select("*").
			Omit("ID", "CreatedAt").
			Updates(m.Order)
		if res.Error != nil {
			return fmt.Errorf("failed to update order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if m.IncrementFarmerOrders {
			err := tx.Model(&models.User{}).
				Where("id = ?", m.Order.FarmerID).
				UpdateColumn("total_orders", gorm.Expr("total_orders + ?", 1)).Error
			if err != nil {
				return fmt.Errorf("failed to increment farmer order count: %w", err)
			}
		}

		if m.Review != nil {
			if err := tx.Create(m.Review).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrVersionConflict
				}
				return fmt.Errorf("failed to insert review: %w", err)
			}
		}

		return insertOutbox(tx, m.Order.ID, m.Outbox)
	})
	if err != nil && m.Order != nil {
		m.Order.Version = m.ExpectedVersion
	}
	return err
}

func recordEvent(tx *gorm.DB, event *models.ProcessedWebhookEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now().UTC()
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("failed to record webhook event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

func insertOutbox(tx *gorm.DB, orderID string, outbox []models.OutboxMessage) error {
	if len(outbox) == 0 {
		return nil
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return fmt.Errorf("failed to insert outbox events for order %s: %w", orderID, err)
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

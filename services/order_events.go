package services

import (
	"encoding/json"
	"time"

	"github.com/farmlink/orders-api/models"
	"github.com/farmlink/orders-api/orderstate"
	"github.com/google/uuid"
)

// Routing keys of the order lifecycle events published to the broker
const (
	EventOrderCreated              = "order.created"
	EventOrderStatusChanged        = "order.status_changed"
	EventOrderPaymentStatusChanged = "order.payment_status_changed"
)

// OrderEvent is the broker payload for an order lifecycle change
type OrderEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	ConsumerID    uint      `json:"consumer_id"`
	FarmerID      uint      `json:"farmer_id"`
	ProductID     uint      `json:"product_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to,omitempty"`
	NeedsReview   bool      `json:"needs_review,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func (s *OrderService) newOutboxMessage(eventType string, order models.Order, from, to string) (models.OutboxMessage, error) {
	now := time.Now().UTC()
	event := OrderEvent{
		EventID:       uuid.NewString(),
		Type:          eventType,
		OrderID:       order.ID,
		ConsumerID:    order.ConsumerID,
		FarmerID:      order.FarmerID,
		ProductID:     order.ProductID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		From:          from,
		To:            to,
		NeedsReview:   order.NeedsReview,
		OccurredAt:    now,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return models.OutboxMessage{}, err
	}

	return models.OutboxMessage{
		EventID:     event.EventID,
		Exchange:    s.opts.EventsExchange,
		RoutingKey:  eventType,
		Payload:     payload,
		ContentType: "application/json",
		NextRetryAt: now,
	}, nil
}

func (s *OrderService) transitionMessages(out orderstate.Outcome) ([]models.OutboxMessage, error) {
	messages := make([]models.OutboxMessage, 0, len(out.Events))
	for _, e := range out.Events {
		eventType := EventOrderStatusChanged
		if e.Axis == orderstate.AxisPaymentStatus {
			eventType = EventOrderPaymentStatusChanged
		}
		msg, err := s.newOutboxMessage(eventType, out.Order, e.From, e.To)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/farmlink/orders-api/apperrors"
	"github.com/farmlink/orders-api/config"
	"github.com/farmlink/orders-api/metrics"
	"github.com/farmlink/orders-api/models"
	"github.com/farmlink/orders-api/orderstate"
	"github.com/farmlink/orders-api/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxMutationAttempts bounds the optimistic read-modify-write loop
const maxMutationAttempts = 3

// OrderStore is the persistence contract the order service depends on
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order, outbox ...models.OutboxMessage) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error)
	ListByConsumer(ctx context.Context, consumerID uint, page repository.Page) ([]models.Order, int64, error)
	ListByFarmer(ctx context.Context, farmerID uint, page repository.Page) ([]models.Order, int64, error)
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	Apply(ctx context.Context, m repository.Mutation) error
}

// ProductCatalog looks up the products orders are placed against
type ProductCatalog interface {
	FindProduct(ctx context.Context, id uint) (*models.Product, error)
}

// OrderServiceOptions tunes the order service
type OrderServiceOptions struct {
	Currency       string
	GatewayTimeout time.Duration
	EventsExchange string
}

// OptionsFromConfig derives service options from the application configuration
func OptionsFromConfig(cfg *config.Config) OrderServiceOptions {
	return OrderServiceOptions{
		Currency:       cfg.StripeCurrency,
		GatewayTimeout: cfg.GatewayTimeout,
		EventsExchange: cfg.OrderEventsExchange,
	}
}

// CreateOrderInput is a consumer's purchase request
type CreateOrderInput struct {
	ConsumerID      uint
	FarmerID        uint
	ProductID       uint
	Quantity        int
	TotalPrice      decimal.Decimal
	ConsumerDetails models.ConsumerDetails
}

// PaymentIntentResult is returned to the consumer to confirm the payment client-side
type PaymentIntentResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Reused          bool   `json:"reused"`
}

// PaymentStatusView is the payment state visible to the parties of an order
type PaymentStatusView struct {
	OrderID       string               `json:"orderId"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	PaymentID     *string              `json:"paymentId"`
}

// OrderService is the only component that mutates orders. Every mutation is a
// pure orderstate transition applied through a versioned write.
type OrderService struct {
	store    OrderStore
	products ProductCatalog
	gateway  PaymentGateway
	opts     OrderServiceOptions
}

var orderServiceInstance *OrderService

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, products ProductCatalog, gateway PaymentGateway, opts OrderServiceOptions) *OrderService {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &OrderService{
		store:    store,
		products: products,
		gateway:  gateway,
		opts:     opts,
	}
}

// InitOrderService initializes the global order service instance
func InitOrderService(store OrderStore, products ProductCatalog, gateway PaymentGateway, opts OrderServiceOptions) *OrderService {
	orderServiceInstance = NewOrderService(store, products, gateway, opts)
	return orderServiceInstance
}

// GetOrderService returns the initialized order service instance
func GetOrderService() *OrderService {
	return orderServiceInstance
}

// SetOrderService sets the order service instance (primarily for testing)
func SetOrderService(service *OrderService) {
	orderServiceInstance = service
}

// CreateOrder validates the request and persists a new pending order, reserving product stock
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	if err := validateCreateOrder(&in); err != nil {
		return nil, err
	}

	product, err := s.products.FindProduct(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("product not found")
		}
		return nil, apperrors.Persistence(err, "failed to load product")
	}
	if !product.Listed {
		return nil, apperrors.Validation("product is not currently listed")
	}
	if product.FarmerID != in.FarmerID {
		return nil, apperrors.Validation("product does not belong to the given farmer")
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		ConsumerID:      in.ConsumerID,
		FarmerID:        in.FarmerID,
		ProductID:       in.ProductID,
		Quantity:        in.Quantity,
		TotalPrice:      in.TotalPrice,
		ConsumerDetails: in.ConsumerDetails,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusUnset,
		Version:         1,
	}

	created, err := s.newOutboxMessage(EventOrderCreated, *order, "", "")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, err, "failed to encode order event")
	}

	if err := s.store.CreateOrder(ctx, order, created); err != nil {
		if errors.Is(err, repository.ErrInsufficientStock) {
			return nil, apperrors.Validation("insufficient stock for the requested quantity")
		}
		return nil, apperrors.Persistence(err, "failed to create order")
	}

	slog.Info("Order created",
		"order_id", order.ID,
		"consumer_id", order.ConsumerID,
		"farmer_id", order.FarmerID,
		"product_id", order.ProductID,
		"quantity", order.Quantity,
	)
	metrics.ObserveTransition(orderstate.AxisStatus, string(order.Status))
	return order, nil
}

func validateCreateOrder(in *CreateOrderInput) error {
	if in.ConsumerID == 0 {
		return apperrors.Validation("consumer is required")
	}
	if in.ProductID == 0 {
		return apperrors.Validation("productId is required")
	}
	if in.FarmerID == 0 {
		return apperrors.Validation("farmerId is required")
	}
	if in.Quantity <= 0 {
		return apperrors.Validation("quantity must be a positive integer")
	}
	if in.TotalPrice.IsNegative() {
		return apperrors.Validation("totalPrice must not be negative")
	}
	if in.TotalPrice.Exponent() < -2 && !in.TotalPrice.Equal(in.TotalPrice.Round(2)) {
		return apperrors.Validation("totalPrice must have at most two decimal places")
	}

	d := &in.ConsumerDetails
	d.FullName = strings.TrimSpace(d.FullName)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Address = strings.TrimSpace(d.Address)
	switch {
	case d.FullName == "":
		return apperrors.Validation("consumerDetails.fullName is required")
	case d.Phone == "":
		return apperrors.Validation("consumerDetails.phone is required")
	case d.Address == "":
		return apperrors.Validation("consumerDetails.address is required")
	}
	if d.DeliveryInstructions != nil {
		trimmed := strings.TrimSpace(*d.DeliveryInstructions)
		if trimmed == "" {
			d.DeliveryInstructions = nil
		} else {
			d.DeliveryInstructions = &trimmed
		}
	}
	return nil
}

// CreateOrCompletePaymentIntent returns a client secret for paying the order.
//
// A still confirmable intent is reused after refreshing its amount. Otherwise a new
// intent is created with an idempotency key derived from the order and attempt number,
// so a retry after a lost response or a failed store write gets the same intent back.
func (s *OrderService) CreateOrCompletePaymentIntent(ctx context.Context, orderID string, callerID uint) (*PaymentIntentResult, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ConsumerID != callerID {
		return nil, apperrors.Forbidden("only the consumer who placed this order can pay for it")
	}
	if err := orderstate.RequestPaymentIntent(*order); err != nil {
		return nil, err
	}

	intent, attempt, reused, err := s.obtainIntent(ctx, *order)
	if err != nil {
		return nil, err
	}

	observed := order.PaymentIntentID
	_, err = s.mutate(ctx, orderID, func(o models.Order) (orderstate.Outcome, error) {
		if !sameIntent(o.PaymentIntentID, observed) && !sameIntent(o.PaymentIntentID, &intent.ID) {
			return orderstate.Outcome{Order: o}, apperrors.Conflict("payment attempt was replaced concurrently, please retry")
		}
		return orderstate.AttachPaymentIntent(o, intent.ID, attempt)
	}, nil)
	if err != nil {
		return nil, err
	}

	slog.Info("Payment intent ready",
		"order_id", orderID,
		"payment_intent_id", intent.ID,
		"attempt", attempt,
		"reused", reused,
	)
	return &PaymentIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Reused:          reused,
	}, nil
}

func (s *OrderService) obtainIntent(ctx context.Context, order models.Order) (*PaymentIntent, int, bool, error) {
	amount := order.AmountMinorUnits()
	if amount <= 0 {
		return nil, 0, false, apperrors.InvalidState("order has nothing to pay")
	}

	if order.PaymentIntentID != nil {
		existing, err := s.getIntent(ctx, *order.PaymentIntentID)
		if err != nil {
			logGatewayError("get_intent", order.ID, err)
			return nil, 0, false, gatewayError(err)
		}

		switch {
		case existing.Status.Captured():
			return nil, 0, false, apperrors.InvalidState("payment already captured, awaiting confirmation")
		case existing.Status.Reusable():
			updated, err := s.updateIntentAmount(ctx, existing.ID, amount)
			if err == nil {
				return updated, order.PaymentAttempt, true, nil
			}
			logGatewayError("update_intent", order.ID, err)

			// the consumer still holds this intent's client secret
			if err := s.cancelIntent(ctx, existing.ID); err != nil {
				logGatewayError("cancel_intent", order.ID, err)
				return nil, 0, false, gatewayError(err)
			}
			slog.Info("Canceled payment intent before replacing it", "order_id", order.ID, "payment_intent_id", existing.ID)
		}
	}

	attempt := order.PaymentAttempt + 1
	params := CreateIntentParams{
		OrderID:        order.ID,
		Amount:         amount,
		Currency:       s.opts.Currency,
		IdempotencyKey: fmt.Sprintf("order-%s-attempt-%d", order.ID, attempt),
	}

	intent, err := s.createIntent(ctx, params)
	if err != nil {
		logGatewayError("create_intent", order.ID, err)
		intent, err = s.createIntent(ctx, params)
		if err != nil {
			logGatewayError("create_intent", order.ID, err)
			return nil, 0, false, gatewayError(err)
		}
	}
	return intent, attempt, false, nil
}

func (s *OrderService) getIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	ctx, cancel := withGatewayTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	return s.gateway.GetIntent(ctx, intentID)
}

func (s *OrderService) updateIntentAmount(ctx context.Context, intentID string, amount int64) (*PaymentIntent, error) {
	ctx, cancel := withGatewayTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	return s.gateway.UpdateIntentAmount(ctx, intentID, amount)
}

func (s *OrderService) cancelIntent(ctx context.Context, intentID string) error {
	ctx, cancel := withGatewayTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	return s.gateway.CancelIntent(ctx, intentID)
}

func (s *OrderService) createIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error) {
	ctx, cancel := withGatewayTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()
	return s.gateway.CreateIntent(ctx, params)
}

func gatewayError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Gateway(err, "payment gateway timed out, please retry")
	}
	return apperrors.Gateway(err, "payment gateway request failed, please retry")
}

// HandleWebhookEvent verifies and applies a payment gateway event.
//
// Delivery is at least once: an event id already in the ledger is acknowledged without
// effect, and the farmer counter is guarded by the order's counted flag. Events that no
// longer apply (unknown order, superseded intent) are recorded as ignored.
func (s *OrderService) HandleWebhookEvent(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.gateway.ParseWebhook(payload, signatureHeader)
	if err != nil {
		slog.Warn("Rejected payment webhook with invalid signature", "error", err)
		metrics.ObserveWebhook("unknown", "invalid_signature")
		return apperrors.Security(err)
	}

	log := slog.With("event_id", event.ID, "event_type", event.RawType)

	if event.Type == WebhookIgnored {
		log.Debug("Ignoring unhandled payment webhook type")
		metrics.ObserveWebhook(event.RawType, "unhandled")
		return nil
	}

	processed, err := s.store.EventProcessed(ctx, event.ID)
	if err != nil {
		return apperrors.Persistence(err, "failed to check webhook ledger")
	}
	if processed {
		log.Info("Payment webhook already processed")
		metrics.ObserveWebhook(event.RawType, "duplicate")
		return nil
	}

	order, err := s.locateOrder(ctx, event)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			log.Warn("Payment webhook references unknown order", "order_id", event.OrderID, "payment_intent_id", event.PaymentIntentID)
			return s.recordIgnored(ctx, event, "")
		}
		return err
	}
	log = log.With("order_id", order.ID, "payment_intent_id", event.PaymentIntentID)

	settle := func(o models.Order) (orderstate.Outcome, error) {
		if event.Type == WebhookPaymentSucceeded {
			return orderstate.SettlePaymentSucceeded(o, event.PaymentIntentID, event.PaymentID)
		}
		return orderstate.SettlePaymentFailed(o, event.PaymentIntentID)
	}

	out, err := s.mutate(ctx, order.ID, settle, func(m *repository.Mutation) {
		m.WebhookEvent = &models.ProcessedWebhookEvent{
			EventID: event.ID,
			Type:    event.RawType,
			OrderID: order.ID,
			Outcome: "applied",
		}
	})
	switch {
	case err == nil && !out.Changed:
		log.Info("Payment webhook is a replay of the current order state")
		return s.recordIgnored(ctx, event, order.ID)
	case err == nil:
		log.Info("Payment webhook applied",
			"payment_status", out.Order.PaymentStatus,
			"status", out.Order.Status,
			"needs_review", out.Order.NeedsReview,
		)
		if out.Order.NeedsReview {
			log.Warn("Payment settled for a rejected order, manual reconciliation required")
		}
		metrics.ObserveWebhook(event.RawType, "applied")
		return nil
	case errors.Is(err, repository.ErrDuplicateEvent):
		log.Info("Payment webhook processed by a concurrent delivery")
		metrics.ObserveWebhook(event.RawType, "duplicate")
		return nil
	case apperrors.Is(err, apperrors.KindInvalidState) && event.Type == WebhookPaymentSucceeded:
		log.Warn("Payment succeeded on an intent the order no longer tracks, manual reconciliation required",
			"reason", apperrors.MessageOf(err),
		)
		return s.recordIgnored(ctx, event, order.ID)
	case apperrors.Is(err, apperrors.KindInvalidState):
		log.Info("Ignoring stale payment webhook", "reason", apperrors.MessageOf(err))
		return s.recordIgnored(ctx, event, order.ID)
	default:
		log.Error("Failed to apply payment webhook", "error", err)
		metrics.ObserveWebhook(event.RawType, "error")
		return err
	}
}

func (s *OrderService) locateOrder(ctx context.Context, event *WebhookEvent) (*models.Order, error) {
	if event.OrderID != "" {
		order, err := s.store.FindByID(ctx, event.OrderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.Persistence(err, "failed to load order")
		}
	}

	order, err := s.store.FindByPaymentIntentID(ctx, event.PaymentIntentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("order not found")
		}
		return nil, apperrors.Persistence(err, "failed to load order")
	}
	return order, nil
}

func (s *OrderService) recordIgnored(ctx context.Context, event *WebhookEvent, orderID string) error {
	err := s.store.Apply(ctx, repository.Mutation{
		WebhookEvent: &models.ProcessedWebhookEvent{
			EventID: event.ID,
			Type:    event.RawType,
			OrderID: orderID,
			Outcome: "ignored",
		},
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicateEvent) {
		return apperrors.Persistence(err, "failed to record webhook event")
	}
	metrics.ObserveWebhook(event.RawType, "ignored")
	return nil
}

// UpdateFulfillmentStatus applies the owning farmer's status change
func (s *OrderService) UpdateFulfillmentStatus(ctx context.Context, orderID string, callerFarmerID uint, newStatus models.OrderStatus, rejectionReason string) (*models.Order, error) {
	out, err := s.mutate(ctx, orderID, func(o models.Order) (orderstate.Outcome, error) {
		return orderstate.UpdateFulfillment(o, callerFarmerID, newStatus, rejectionReason)
	}, nil)
	if err != nil {
		return nil, err
	}

	slog.Info("Order status updated",
		"order_id", orderID,
		"farmer_id", callerFarmerID,
		"status", out.Order.Status,
		"farmer_counted", out.CountFarmer,
	)
	return &out.Order, nil
}

// GetPaymentStatus returns the payment state to the order's consumer or farmer
func (s *OrderService) GetPaymentStatus(ctx context.Context, orderID string, callerID uint) (*PaymentStatusView, error) {
	order, err := s.GetOrder(ctx, orderID, callerID)
	if err != nil {
		return nil, err
	}
	return &PaymentStatusView{
		OrderID:       order.ID,
		PaymentStatus: order.PaymentStatus,
		PaymentID:     order.PaymentID,
	}, nil
}

// GetOrder returns an order visible to its consumer and its farmer only
func (s *OrderService) GetOrder(ctx context.Context, orderID string, callerID uint) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParty(callerID) {
		return nil, apperrors.Forbidden("you do not have access to this order")
	}
	return order, nil
}

// ListConsumerOrders returns a page of orders placed by the consumer
func (s *OrderService) ListConsumerOrders(ctx context.Context, consumerID uint, page repository.Page) ([]models.Order, int64, error) {
	orders, total, err := s.store.ListByConsumer(ctx, consumerID, page)
	if err != nil {
		return nil, 0, apperrors.Persistence(err, "failed to list orders")
	}
	return orders, total, nil
}

// ListFarmerOrders returns a page of orders placed against the farmer's products
func (s *OrderService) ListFarmerOrders(ctx context.Context, farmerID uint, page repository.Page) ([]models.Order, int64, error) {
	orders, total, err := s.store.ListByFarmer(ctx, farmerID, page)
	if err != nil {
		return nil, 0, apperrors.Persistence(err, "failed to list orders")
	}
	return orders, total, nil
}

// SubmitReview records the consumer's single review of a completed order
func (s *OrderService) SubmitReview(ctx context.Context, orderID string, consumerID uint, rating int, comment string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, apperrors.Validation("rating must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > 2000 {
		return nil, apperrors.Validation("comment must be at most 2000 characters")
	}

	var review *models.Review
	_, err := s.mutate(ctx, orderID, func(o models.Order) (orderstate.Outcome, error) {
		reviewed, err := orderstate.MarkReviewed(o, consumerID)
		if err != nil {
			return orderstate.Outcome{Order: o}, err
		}
		return orderstate.Outcome{Order: reviewed, Changed: true}, nil
	}, func(m *repository.Mutation) {
		review = &models.Review{
			OrderID:    m.Order.ID,
			ProductID:  m.Order.ProductID,
			ConsumerID: consumerID,
			Rating:     rating,
			Comment:    comment,
		}
		m.Review = review
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Order reviewed", "order_id", orderID, "consumer_id", consumerID, "rating", rating)
	return review, nil
}

// mutate runs transition against the latest stored snapshot and writes the result
// only if the order is still at the version it was read at. A conflicting write
// reloads and re-decides, up to maxMutationAttempts times.
func (s *OrderService) mutate(
	ctx context.Context,
	orderID string,
	transition func(models.Order) (orderstate.Outcome, error),
	decorate func(*repository.Mutation),
) (orderstate.Outcome, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.loadOrder(ctx, orderID)
		if err != nil {
			return orderstate.Outcome{}, err
		}

		out, err := transition(*current)
		if err != nil || !out.Changed {
			return out, err
		}

		outbox, err := s.transitionMessages(out)
		if err != nil {
			return out, apperrors.Wrap(apperrors.KindInternal, err, "failed to encode order event")
		}

		m := repository.Mutation{
			Order:                 &out.Order,
			ExpectedVersion:       current.Version,
			IncrementFarmerOrders: out.CountFarmer,
			Outbox:                outbox,
		}
		if decorate != nil {
			decorate(&m)
		}

		err = s.store.Apply(ctx, m)
		if err == nil {
			for _, e := range out.Events {
				metrics.ObserveTransition(e.Axis, e.To)
			}
			return out, nil
		}

		switch {
		case errors.Is(err, repository.ErrVersionConflict) && attempt < maxMutationAttempts:
			slog.Debug("Order changed concurrently, retrying", "order_id", orderID, "attempt", attempt)
			continue
		case errors.Is(err, repository.ErrVersionConflict):
			return out, apperrors.Wrap(apperrors.KindConflict, err, "order was modified concurrently, please retry")
		case errors.Is(err, repository.ErrDuplicateEvent):
			return out, err
		default:
			return out, apperrors.Persistence(err, "failed to save order")
		}
	}
}

func (s *OrderService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, apperrors.Validation("orderId is required")
	}
	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("order not found")
		}
		return nil, apperrors.Persistence(err, "failed to load order")
	}
	return order, nil
}

func sameIntent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

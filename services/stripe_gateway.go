package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/farmlink/orders-api/config"
	"github.com/farmlink/orders-api/metrics"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	stripeEventSucceeded = "payment_intent.succeeded"
	stripeEventFailed    = "payment_intent.payment_failed"
)

// StripeGateway implements PaymentGateway using Stripe payment intents
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	currency      string
}

// NewStripeGateway creates a Stripe-backed gateway.
// Every request made through the client is bounded by timeout.
func NewStripeGateway(cfg *config.Config) *StripeGateway {
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{Timeout: cfg.GatewayTimeout},
		// retries are handled by the order service so the idempotency key stays under our control
		MaxNetworkRetries: stripe.Int64(0),
	})

	api := &client.API{}
	api.Init(cfg.StripeSecretKey, &stripe.Backends{
		API:     backend,
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})

	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.StripeWebhookSecret,
		currency:      cfg.StripeCurrency,
	}
}

// CreateIntent creates a payment intent tagged with the order id
func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*PaymentIntent, error) {
	currency := p.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", p.OrderID)
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	metrics.ObserveGatewayRequest("create_intent", err)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return toPaymentIntent(pi), nil
}

// UpdateIntentAmount updates the amount on an existing intent
func (g *StripeGateway) UpdateIntentAmount(ctx context.Context, intentID string, amount int64) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{Amount: stripe.Int64(amount)}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Update(intentID, params)
	metrics.ObserveGatewayRequest("update_intent", err)
	if err != nil {
		return nil, fmt.Errorf("stripe update payment intent %s: %w", intentID, err)
	}
	return toPaymentIntent(pi), nil
}

// CancelIntent cancels an intent so its client secret can no longer be confirmed
func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	_, err := g.api.PaymentIntents.Cancel(intentID, params)
	metrics.ObserveGatewayRequest("cancel_intent", err)
	if err != nil {
		return fmt.Errorf("stripe cancel payment intent %s: %w", intentID, err)
	}
	return nil
}

// GetIntent retrieves an intent
func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	metrics.ObserveGatewayRequest("get_intent", err)
	if err != nil {
		return nil, fmt.Errorf("stripe get payment intent %s: %w", intentID, err)
	}
	return toPaymentIntent(pi), nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the payment intent outcome
func (g *StripeGateway) ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	return parseStripeWebhook(payload, signatureHeader, g.webhookSecret)
}

func parseStripeWebhook(payload []byte, signatureHeader, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}

	out := &WebhookEvent{ID: event.ID, RawType: string(event.Type), Type: WebhookIgnored}
	switch string(event.Type) {
	case stripeEventSucceeded:
		out.Type = WebhookPaymentSucceeded
	case stripeEventFailed:
		out.Type = WebhookPaymentFailed
	default:
		return out, nil
	}

	if event.Data == nil {
		return nil, errors.New("stripe event has no data")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent from event %s: %w", event.ID, err)
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("event %s carries no payment intent id", event.ID)
	}

	out.PaymentIntentID = pi.ID
	out.OrderID = pi.Metadata["order_id"]
	out.PaymentID = pi.ID
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		out.PaymentID = pi.LatestCharge.ID
	}
	return out, nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
}

// withGatewayTimeout bounds a single gateway call
func withGatewayTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func logGatewayError(op, orderID string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		slog.Warn("Payment gateway request failed",
			"op", op,
			"order_id", orderID,
			"stripe_code", stripeErr.Code,
			"http_status", stripeErr.HTTPStatusCode,
			"error", err,
		)
		return
	}
	slog.Warn("Payment gateway request failed", "op", op, "order_id", orderID, "error", err)
}

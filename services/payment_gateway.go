package services

import (
	"context"
)

// IntentStatus is the gateway-side state of a payment intent
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// Reusable reports whether the intent can still be confirmed by the client,
// so its amount may be updated instead of creating a new one
func (s IntentStatus) Reusable() bool {
	switch s {
	case IntentRequiresPaymentMethod, IntentRequiresConfirmation, IntentRequiresAction:
		return true
	}
	return false
}

// Captured reports whether money has already moved (or is about to) for this intent
func (s IntentStatus) Captured() bool {
	return s == IntentSucceeded || s == IntentProcessing || s == IntentRequiresCapture
}

// PaymentIntent is the adapter's view of a gateway payment intent
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       IntentStatus
	Amount       int64
	Currency     string
}

// CreateIntentParams describes a new payment attempt for an order
type CreateIntentParams struct {
	OrderID        string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

// WebhookEventType is the normalized outcome carried by a gateway event
type WebhookEventType string

const (
	WebhookPaymentSucceeded WebhookEventType = "payment_succeeded"
	WebhookPaymentFailed    WebhookEventType = "payment_failed"
	WebhookIgnored          WebhookEventType = "ignored"
)

// WebhookEvent is a verified, normalized gateway event
type WebhookEvent struct {
	ID              string
	RawType         string
	Type            WebhookEventType
	PaymentIntentID string
	PaymentID       string
	OrderID         string // from intent metadata, may be empty
}

// PaymentGateway wraps the external payment processor
type PaymentGateway interface {
	// CreateIntent creates a new payment intent
	CreateIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error)

	// UpdateIntentAmount changes the amount of an existing, still confirmable intent
	UpdateIntentAmount(ctx context.Context, intentID string, amount int64) (*PaymentIntent, error)

	// CancelIntent cancels an intent that has not been captured
	CancelIntent(ctx context.Context, intentID string) error

	// GetIntent retrieves the current state of an intent
	GetIntent(ctx context.Context, intentID string) (*PaymentIntent, error)

	// ParseWebhook verifies the payload signature and normalizes the event.
	// It must fail closed: any verification problem returns an error.
	ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
}

package services

import (
	"testing"
	"time"

	"github.com/farmlink/orders-api/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func newTestStripeGateway() *StripeGateway {
	return NewStripeGateway(&config.Config{
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: MockWebhookSecret,
		StripeCurrency:      "usd",
		GatewayTimeout:      time.Second,
	})
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	gateway := newTestStripeGateway()
	signer := NewMockPaymentGateway()

	tests := []struct {
		name          string
		eventType     string
		chargeID      string
		wantType      WebhookEventType
		wantPaymentID string
	}{
		{"succeeded with charge", "payment_intent.succeeded", "ch_1", WebhookPaymentSucceeded, "ch_1"},
		{"succeeded without charge", "payment_intent.succeeded", "", WebhookPaymentSucceeded, "pi_1"},
		{"payment failed", "payment_intent.payment_failed", "", WebhookPaymentFailed, "pi_1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, header := signer.SignedEvent("evt_1", tt.eventType, "pi_1", "order-1", tt.chargeID)

			event, err := gateway.ParseWebhook(payload, header)
			require.NoError(t, err)
			assert.Equal(t, "evt_1", event.ID)
			assert.Equal(t, tt.eventType, event.RawType)
			assert.Equal(t, tt.wantType, event.Type)
			assert.Equal(t, "pi_1", event.PaymentIntentID)
			assert.Equal(t, "order-1", event.OrderID)
			assert.Equal(t, tt.wantPaymentID, event.PaymentID)
		})
	}
}

func TestStripeGateway_ParseWebhookIgnoresOtherTypes(t *testing.T) {
	gateway := newTestStripeGateway()
	payload, header := NewMockPaymentGateway().SignedEvent("evt_2", "charge.refunded", "pi_1", "", "")

	event, err := gateway.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, event.Type)
	assert.Empty(t, event.PaymentIntentID)
}

func TestStripeGateway_ParseWebhookRejectsBadSignature(t *testing.T) {
	gateway := NewStripeGateway(&config.Config{
		StripeSecretKey:     "sk_test_123",
		StripeWebhookSecret: "whsec_other",
		GatewayTimeout:      time.Second,
	})
	payload, header := NewMockPaymentGateway().SignedEvent("evt_1", "payment_intent.succeeded", "pi_1", "order-1", "")

	_, err := gateway.ParseWebhook(payload, header)
	assert.Error(t, err)

	_, err = gateway.ParseWebhook(payload, "")
	assert.Error(t, err)
}

func TestToPaymentIntent(t *testing.T) {
	pi := toPaymentIntent(&stripe.PaymentIntent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		Amount:       15000,
		Currency:     stripe.CurrencyUSD,
	})

	assert.Equal(t, "pi_1", pi.ID)
	assert.Equal(t, "pi_1_secret", pi.ClientSecret)
	assert.Equal(t, IntentRequiresPaymentMethod, pi.Status)
	assert.Equal(t, int64(15000), pi.Amount)
	assert.Equal(t, "usd", pi.Currency)
}

func TestIntentStatus(t *testing.T) {
	tests := []struct {
		status   IntentStatus
		reusable bool
		captured bool
	}{
		{IntentRequiresPaymentMethod, true, false},
		{IntentRequiresConfirmation, true, false},
		{IntentRequiresAction, true, false},
		{IntentProcessing, false, true},
		{IntentRequiresCapture, false, true},
		{IntentSucceeded, false, true},
		{IntentCanceled, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.reusable, tt.status.Reusable())
			assert.Equal(t, tt.captured, tt.status.Captured())
		})
	}
}

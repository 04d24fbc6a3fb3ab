package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

// MockWebhookSecret is the signing secret used by NewMockPaymentGateway
const MockWebhookSecret = "whsec_test_secret"

// MockPaymentGateway is an in-memory implementation of PaymentGateway for testing.
// Webhooks are signed and verified with the real Stripe signature scheme.
type MockPaymentGateway struct {
	mu            sync.Mutex
	webhookSecret string
	intents       map[string]*PaymentIntent
	byIdempotency map[string]string
	seq           int

	createErrs []error
	updateErr  error
	cancelErr  error
	getErr     error

	createCalls int
	updateCalls int
}

// NewMockPaymentGateway creates a new mock gateway
func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{
		webhookSecret: MockWebhookSecret,
		intents:       make(map[string]*PaymentIntent),
		byIdempotency: make(map[string]string),
	}
}

// FailNextCreate queues errors returned by the next CreateIntent calls, in order
func (m *MockPaymentGateway) FailNextCreate(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErrs = append(m.createErrs, errs...)
}

// FailUpdate makes every UpdateIntentAmount call return err (nil to clear)
func (m *MockPaymentGateway) FailUpdate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
}

// FailCancel makes every CancelIntent call return err (nil to clear)
func (m *MockPaymentGateway) FailCancel(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErr = err
}

// FailGet makes every GetIntent call return err (nil to clear)
func (m *MockPaymentGateway) FailGet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// SetIntentStatus simulates the client confirming (or abandoning) an intent
func (m *MockPaymentGateway) SetIntentStatus(intentID string, status IntentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pi, ok := m.intents[intentID]; ok {
		pi.Status = status
	}
}

// Intent returns a copy of the stored intent
func (m *MockPaymentGateway) Intent(intentID string) (PaymentIntent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pi, ok := m.intents[intentID]
	if !ok {
		return PaymentIntent{}, false
	}
	return *pi, true
}

// IntentCount returns how many distinct intents exist at the gateway
func (m *MockPaymentGateway) IntentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.intents)
}

// CreateCalls returns how many times CreateIntent was called
func (m *MockPaymentGateway) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// UpdateCalls returns how many times UpdateIntentAmount was called
func (m *MockPaymentGateway) UpdateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCalls
}

// CreateIntent simulates creating a payment intent. A repeated idempotency key
// returns the intent created by the first call.
func (m *MockPaymentGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		return nil, err
	}

	if id, ok := m.byIdempotency[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		pi := *m.intents[id]
		return &pi, nil
	}

	m.seq++
	id := fmt.Sprintf("pi_mock_%d", m.seq)
	currency := p.Currency
	if currency == "" {
		currency = "usd"
	}
	pi := &PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_mock",
		Status:       IntentRequiresPaymentMethod,
		Amount:       p.Amount,
		Currency:     currency,
	}
	m.intents[id] = pi
	if p.IdempotencyKey != "" {
		m.byIdempotency[p.IdempotencyKey] = id
	}

	out := *pi
	return &out, nil
}

// UpdateIntentAmount simulates updating an intent's amount
func (m *MockPaymentGateway) UpdateIntentAmount(ctx context.Context, intentID string, amount int64) (*PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	pi, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("no such payment_intent: %s", intentID)
	}
	if !pi.Status.Reusable() {
		return nil, fmt.Errorf("payment_intent %s cannot be updated in status %s", intentID, pi.Status)
	}
	pi.Amount = amount

	out := *pi
	return &out, nil
}

// CancelIntent simulates canceling an intent. Captured intents cannot be canceled.
func (m *MockPaymentGateway) CancelIntent(ctx context.Context, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cancelErr != nil {
		return m.cancelErr
	}
	pi, ok := m.intents[intentID]
	if !ok {
		return fmt.Errorf("no such payment_intent: %s", intentID)
	}
	if pi.Status.Captured() {
		return fmt.Errorf("payment_intent %s cannot be canceled in status %s", intentID, pi.Status)
	}
	pi.Status = IntentCanceled
	return nil
}

// GetIntent simulates retrieving an intent
func (m *MockPaymentGateway) GetIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.getErr != nil {
		return nil, m.getErr
	}
	pi, ok := m.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("no such payment_intent: %s", intentID)
	}

	out := *pi
	return &out, nil
}

// ParseWebhook verifies the signature exactly like the Stripe adapter does
func (m *MockPaymentGateway) ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	return parseStripeWebhook(payload, signatureHeader, m.webhookSecret)
}

// SignedEvent builds a Stripe-shaped payment intent event and its signature header.
// eventType is the raw Stripe type, e.g. "payment_intent.succeeded".
func (m *MockPaymentGateway) SignedEvent(eventID, eventType, intentID, orderID, chargeID string) ([]byte, string) {
	object := map[string]interface{}{
		"id":       intentID,
		"object":   "payment_intent",
		"metadata": map[string]string{"order_id": orderID},
	}
	if chargeID != "" {
		object["latest_charge"] = chargeID
	}

	payload, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": "2023-10-16",
		"created":     time.Now().Unix(),
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		panic(err)
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    m.webhookSecret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/farmlink/orders-api/models"
	"github.com/farmlink/orders-api/repository"
	"github.com/farmlink/orders-api/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockPublisher struct {
	mu        sync.Mutex
	published []Message
	failKeys  map[string]bool
}

func (p *mockPublisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKeys[msg.RoutingKey] {
		return errors.New("channel closed")
	}
	p.published = append(p.published, msg)
	return nil
}

func seedOutbox(t *testing.T, db *gorm.DB, eventID, routingKey string, due time.Time) models.OutboxMessage {
	t.Helper()
	msg := models.OutboxMessage{
		EventID:     eventID,
		Exchange:    "farmlink.orders",
		RoutingKey:  routingKey,
		Payload:     []byte(`{"order_id":"o-1"}`),
		ContentType: "application/json",
		NextRetryAt: due,
	}
	require.NoError(t, db.Create(&msg).Error)
	return msg
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{7, 32 * time.Minute},
		{8, time.Hour},
		{50, time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.retry), "retry %d", tt.retry)
	}
}

func TestOutboxWorker_PublishesAndDeletes(t *testing.T) {
	db := testutil.NewTestDB(t)
	past := time.Now().UTC().Add(-time.Minute)
	seedOutbox(t, db, "evt-1", "order.created", past)
	seedOutbox(t, db, "evt-2", "order.status_changed", past)
	seedOutbox(t, db, "evt-later", "order.created", time.Now().UTC().Add(time.Hour))

	publisher := &mockPublisher{}
	worker := NewOutboxWorker(repository.NewOutboxRepository(db), publisher, time.Second, 10)

	assert.Equal(t, 2, worker.ProcessBatch(context.Background()))
	require.Len(t, publisher.published, 2)
	assert.Equal(t, "evt-1", publisher.published[0].MessageID)
	assert.Equal(t, "farmlink.orders", publisher.published[0].Exchange)
	assert.Equal(t, "order.created", publisher.published[0].RoutingKey)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(publisher.published[0].Body))

	var remaining []models.OutboxMessage
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "evt-later", remaining[0].EventID)
}

func TestOutboxWorker_FailureSchedulesRetry(t *testing.T) {
	db := testutil.NewTestDB(t)
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := seedOutbox(t, db, "evt-1", "order.created", fixed.Add(-time.Minute))

	publisher := &mockPublisher{failKeys: map[string]bool{"order.created": true}}
	worker := NewOutboxWorker(repository.NewOutboxRepository(db), publisher, time.Second, 10)
	clock := fixed
	worker.now = func() time.Time { return clock }

	assert.Equal(t, 0, worker.ProcessBatch(context.Background()))

	var stored models.OutboxMessage
	require.NoError(t, db.First(&stored, msg.ID).Error)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, "channel closed", stored.LastError)
	assert.True(t, stored.NextRetryAt.Equal(fixed.Add(30*time.Second)), "next retry %s", stored.NextRetryAt)

	// not yet due: the next batch leaves it alone
	assert.Equal(t, 0, worker.ProcessBatch(context.Background()))
	require.NoError(t, db.First(&stored, msg.ID).Error)
	assert.Equal(t, 1, stored.RetryCount)

	// once the delay has passed the message is attempted again
	clock = fixed.Add(31 * time.Second)
	assert.Equal(t, 0, worker.ProcessBatch(context.Background()))
	require.NoError(t, db.First(&stored, msg.ID).Error)
	assert.Equal(t, 2, stored.RetryCount)
	assert.True(t, stored.NextRetryAt.Equal(clock.Add(time.Minute)), "next retry %s", stored.NextRetryAt)
}

func TestOutboxWorker_RunStopsOnCancel(t *testing.T) {
	db := testutil.NewTestDB(t)
	seedOutbox(t, db, "evt-1", "order.created", time.Now().UTC().Add(-time.Minute))

	publisher := &mockPublisher{}
	worker := NewOutboxWorker(repository.NewOutboxRepository(db), publisher, 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		publisher.mu.Lock()
		defer publisher.mu.Unlock()
		return len(publisher.published) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

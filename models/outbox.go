package models

import "time"

// OutboxMessage is an order event waiting to be published to the broker
type OutboxMessage struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID     string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"event_id"`
	Exchange    string    `gorm:"not null" json:"exchange"`
	RoutingKey  string    `gorm:"not null" json:"routing_key"`
	Payload     []byte    `gorm:"not null" json:"payload"`
	ContentType string    `gorm:"not null;default:'application/json'" json:"content_type"`
	RetryCount  int       `gorm:"not null;default:0" json:"retry_count"`
	LastError   string    `json:"last_error"`
	NextRetryAt time.Time `gorm:"index;not null" json:"next_retry_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for the OutboxMessage model
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

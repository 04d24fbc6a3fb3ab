package models

import "time"

// ProcessedWebhookEvent records a gateway event that has already been applied.
// The event id is the primary key, so a redelivery cannot be recorded twice.
type ProcessedWebhookEvent struct {
	EventID     string    `gorm:"primaryKey;type:varchar(255)" json:"event_id"`
	Type        string    `gorm:"not null" json:"type"`
	OrderID     string    `gorm:"type:varchar(36);index" json:"order_id"`
	Outcome     string    `gorm:"not null" json:"outcome"` // applied, ignored
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
}

// TableName specifies the table name for the ProcessedWebhookEvent model
func (ProcessedWebhookEvent) TableName() string {
	return "processed_webhook_events"
}

package models

import (
	"time"
)

// Review is a consumer's rating of a completed order, at most one per order
type Review struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	OrderID    string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"order_id"`
	ProductID  uint      `gorm:"not null;index" json:"product_id"`
	ConsumerID uint      `gorm:"not null;index" json:"consumer_id"`
	Rating     int       `gorm:"not null;check:rating BETWEEN 1 AND 5" json:"rating"`
	Comment    string    `gorm:"type:text" json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for the Review model
func (Review) TableName() string {
	return "reviews"
}

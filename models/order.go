package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the farmer-controlled fulfillment lifecycle of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCompleted OrderStatus = "completed"
)

// Valid reports whether s is one of the known fulfillment states
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAccepted, OrderStatusRejected, OrderStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no fulfillment transition leaves s
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusRejected || s == OrderStatusCompleted
}

// PaymentStatus is the payment lifecycle of an order, independent of OrderStatus
type PaymentStatus string

const (
	PaymentStatusUnset      PaymentStatus = "unset"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusPaid       PaymentStatus = "paid"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// Valid reports whether s is one of the known payment states
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnset, PaymentStatusProcessing, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

// ConsumerDetails is the delivery snapshot captured when the order is placed.
// It is copied onto the order so later profile edits never rewrite history.
type ConsumerDetails struct {
	FullName             string  `gorm:"not null" json:"full_name"`
	Phone                string  `gorm:"not null" json:"phone"`
	Address              string  `gorm:"not null" json:"address"`
	DeliveryInstructions *string `json:"delivery_instructions,omitempty"`
}

// Order represents a consumer purchase against one farmer's product
type Order struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConsumerID      uint            `gorm:"not null;index" json:"consumer_id"`
	FarmerID        uint            `gorm:"not null;index" json:"farmer_id"`
	ProductID       uint            `gorm:"not null;index" json:"product_id"`
	Quantity        int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	TotalPrice      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"` // fixed at creation
	ConsumerDetails ConsumerDetails `gorm:"embedded;embeddedPrefix:consumer_" json:"consumer_details"`
	Status          OrderStatus     `gorm:"type:varchar(16);not null;index" json:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty"` // set iff status is rejected
	PaymentStatus   PaymentStatus   `gorm:"type:varchar(16);not null" json:"payment_status"`
	PaymentIntentID *string         `gorm:"index" json:"payment_intent_id,omitempty"`
	PaymentID       *string         `json:"payment_id,omitempty"`
	PaymentAttempt  int             `gorm:"not null;default:0" json:"-"`
	HasReviewed     bool            `gorm:"not null;default:false" json:"has_reviewed"`
	FarmerCounted   bool            `gorm:"not null;default:false" json:"-"`
	NeedsReview     bool            `gorm:"not null;default:false" json:"needs_review"` // paid after rejection, reconcile manually
	Version         int             `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate assigns an opaque id and the initial lifecycle state
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentStatusUnset
	}
	if o.Version == 0 {
		o.Version = 1
	}
	return nil
}

// AmountMinorUnits returns the total price in the currency's minor units (cents)
func (o *Order) AmountMinorUnits() int64 {
	return o.TotalPrice.Shift(2).Round(0).IntPart()
}

// IsParty reports whether the user is the order's consumer or its farmer
func (o *Order) IsParty(userID uint) bool {
	return o.ConsumerID == userID || o.FarmerID == userID
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a farmer's listing that consumers order against
type Product struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	FarmerID  uint            `gorm:"not null;index" json:"farmer_id"`
	Name      string          `gorm:"not null" json:"name"`
	Unit      string          `gorm:"not null;default:'kg'" json:"unit"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock     int             `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	Listed    bool            `gorm:"not null;default:true" json:"listed"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}

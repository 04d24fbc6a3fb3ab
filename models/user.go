package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleConsumer = "consumer"
	RoleFarmer   = "farmer"
)

// User represents a marketplace account (consumer or farmer)
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Auth0ID     string         `gorm:"uniqueIndex;not null" json:"auth0_id"` // Auth0 user ID (from 'sub' claim)
	Name        string         `gorm:"not null" json:"name"`
	Email       string         `gorm:"uniqueIndex;not null" json:"email"`
	Role        string         `gorm:"not null;default:'consumer'" json:"role"` // "consumer" or "farmer"
	TotalOrders int            `gorm:"not null;default:0" json:"total_orders"`  // farmers only, bumped once per counted order
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// IsFarmer reports whether the user sells products
func (u *User) IsFarmer() bool {
	return u.Role == RoleFarmer
}

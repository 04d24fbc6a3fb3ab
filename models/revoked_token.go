package models

import "time"

// RevokedToken marks a JWT id as logged out until the token would have expired anyway
type RevokedToken struct {
	JTI       string    `gorm:"primaryKey;type:varchar(255)" json:"jti"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the RevokedToken model
func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/farmlink/orders-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRepository persists revoked JWT ids
type TokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new revoked-token repository
func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Revoke records the token id until expiresAt. Revoking twice is a no-op.
func (r *TokenRepository) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	token := models.RevokedToken{JTI: jti, ExpiresAt: expiresAt.UTC()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&token).Error
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id was revoked and has not yet expired
func (r *TokenRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RevokedToken{}).
		Where("jti = ? AND expires_at > ?", jti, time.Now().UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check revoked tokens: %w", err)
	}
	return count > 0, nil
}

// PurgeExpired deletes revocations whose tokens have expired
func (r *TokenRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", time.Now().UTC()).Delete(&models.RevokedToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge revoked tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

package controllers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/farmlink/orders-api/config"
	"github.com/farmlink/orders-api/middleware"
	"github.com/farmlink/orders-api/repository"
	"github.com/gin-gonic/gin"
)

// Logout handles POST /api/auth/logout - revokes the caller's token until it expires
func Logout(c *gin.Context) {
	claims, err := middleware.GetClaims(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_CLAIMS",
				"message": "Could not retrieve token claims",
			},
		})
		return
	}

	jti := claims.RegisteredClaims.ID
	if jti == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_TOKEN_ID",
				"message": "Token has no jti claim and cannot be revoked",
			},
		})
		return
	}

	expiresAt := time.Unix(claims.RegisteredClaims.Expiry, 0)
	if claims.RegisteredClaims.Expiry == 0 {
		expiresAt = time.Now().Add(24 * time.Hour)
	}

	tokens := repository.NewTokenRepository(config.GetDB())
	if err := tokens.Revoke(c.Request.Context(), jti, expiresAt); err != nil {
		slog.Error("Failed to revoke token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to log out",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Logged out",
	})
}

package testutil

import (
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/farmlink/orders-api/middleware"
	"github.com/gin-gonic/gin"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, role, jti string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  "https://test.auth0.com/",
			Subject: subject,
			ID:      jti,
			Expiry:  4102444800, // 2100-01-01
		},
		CustomClaims: &middleware.CustomClaims{
			Role: role,
		},
	}
}

// MockAuthMiddleware simulates a successfully validated JWT for the given user
func MockAuthMiddleware(auth0ID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, auth0ID)
		c.Set(middleware.ContextAccessToken, "mock-token")
		c.Set(middleware.ContextClaims, MockValidatedClaims(auth0ID, role, "jti-"+auth0ID))
		c.Next()
	}
}

package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RevocationChecker reports whether a token id has been logged out
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RejectRevokedTokens aborts requests whose token id is in the revoked-token store.
// It must run after EnsureValidToken. A store failure rejects the request.
func RejectRevokedTokens(checker RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := GetClaims(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "MISSING_CLAIMS",
					"message": "Could not retrieve token claims",
				},
			})
			c.Abort()
			return
		}

		jti := claims.RegisteredClaims.ID
		if jti == "" {
			c.Next()
			return
		}

		revoked, err := checker.IsRevoked(c.Request.Context(), jti)
		if err != nil {
			slog.Error("Failed to check token revocation", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "AUTH_UNAVAILABLE",
					"message": "Could not verify token, please retry",
				},
			})
			c.Abort()
			return
		}
		if revoked {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "TOKEN_REVOKED",
					"message": "This token has been logged out",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

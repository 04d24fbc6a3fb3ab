package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/farmlink/orders-api/middleware"
	"github.com/farmlink/orders-api/models"
	"github.com/farmlink/orders-api/repository"
	"github.com/farmlink/orders-api/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogout(t *testing.T) {
	f := setupAPI(t)
	tokens := repository.NewTokenRepository(f.db)

	w, response := serve(t, http.MethodPost, "/api/auth/logout", "/api/auth/logout", Logout, f.consumer.Auth0ID, models.RoleConsumer, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, response["success"].(bool))

	revoked, err := tokens.IsRevoked(context.Background(), "jti-"+f.consumer.Auth0ID)
	require.NoError(t, err)
	assert.True(t, revoked)

	// logging out twice is harmless
	w, _ = serve(t, http.MethodPost, "/api/auth/logout", "/api/auth/logout", Logout, f.consumer.Auth0ID, models.RoleConsumer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogout_TokenWithoutJTI(t *testing.T) {
	setupAPI(t)

	noJTI := func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "auth0|consumer")
		c.Set(middleware.ContextClaims, testutil.MockValidatedClaims("auth0|consumer", models.RoleConsumer, ""))
		c.Next()
	}
	router := gin.New()
	router.POST("/api/auth/logout", noJTI, Logout)

	w, response := serveRouter(t, router, http.MethodPost, "/api/auth/logout")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_TOKEN_ID", errorCode(response))
}

func TestLogout_NoClaims(t *testing.T) {
	setupAPI(t)

	w, response := serve(t, http.MethodPost, "/api/auth/logout", "/api/auth/logout", Logout, "", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MISSING_CLAIMS", errorCode(response))
}

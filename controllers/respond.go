package controllers

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/farmlink/orders-api/apperrors"
	"github.com/farmlink/orders-api/config"
	"github.com/farmlink/orders-api/middleware"
	"github.com/farmlink/orders-api/models"
	"github.com/farmlink/orders-api/repository"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

var kindStatus = map[apperrors.Kind]int{
	apperrors.KindValidation:        http.StatusBadRequest,
	apperrors.KindInvalidTransition: http.StatusBadRequest,
	apperrors.KindInvalidState:      http.StatusBadRequest,
	apperrors.KindSecurity:          http.StatusBadRequest,
	apperrors.KindNotFound:          http.StatusNotFound,
	apperrors.KindForbidden:         http.StatusForbidden,
	apperrors.KindConflict:          http.StatusConflict,
	apperrors.KindGateway:           http.StatusBadGateway,
	apperrors.KindPersistence:       http.StatusInternalServerError,
	apperrors.KindInternal:          http.StatusInternalServerError,
}

// StatusForKind maps an error kind to its HTTP status
func StatusForKind(kind apperrors.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError writes the standard error envelope for a service error
func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := StatusForKind(kind)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.FullPath(), "kind", kind, "error", err)
	}

	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":      string(kind),
			"message":   apperrors.MessageOf(err),
			"retryable": apperrors.Retryable(err),
		},
	})
}

// RouteNotFound answers unknown routes with the standard error envelope
func RouteNotFound(c *gin.Context) {
	respondError(c, apperrors.NotFound("no route for %s %s", c.Request.Method, c.Request.URL.Path))
}

func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

// currentUser loads the profile of the authenticated caller.
// It writes the error response itself and returns false when there is none.
func currentUser(c *gin.Context) (*models.User, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return nil, false
	}

	var user models.User
	err = config.GetDB().WithContext(c.Request.Context()).Where("auth0_id = ?", auth0ID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "USER_NOT_FOUND",
					"message": "User profile not found. Please create a profile first.",
				},
			})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load user profile",
			},
		})
		return nil, false
	}
	return &user, true
}

// parsePage reads ?page= and ?limit=, writing a 400 and returning false when they are malformed
func parsePage(c *gin.Context) (repository.Page, bool) {
	page := repository.Page{Page: 1, Limit: defaultPageLimit}

	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, apperrors.Validation("page must be a positive integer"))
			return page, false
		}
		page.Page = n
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageLimit {
			respondError(c, apperrors.Validation("limit must be between 1 and %d", maxPageLimit))
			return page, false
		}
		page.Limit = n
	}
	return page, true
}

func pagination(page repository.Page, total int64) gin.H {
	return gin.H{
		"page":        page.Page,
		"limit":       page.Limit,
		"total":       total,
		"total_pages": int(math.Ceil(float64(total) / float64(page.Limit))),
	}
}

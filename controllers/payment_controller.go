package controllers

import (
	"io"
	"net/http"

	"github.com/farmlink/orders-api/apperrors"
	"github.com/farmlink/orders-api/services"
	"github.com/gin-gonic/gin"
)

// maxWebhookBodyBytes bounds the webhook payload read into memory
const maxWebhookBodyBytes = 65536

// CreatePaymentIntentRequest represents the request body for starting a payment
type CreatePaymentIntentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// CreatePaymentIntent handles POST /api/payments/create-payment-intent (ordering consumer only)
func CreatePaymentIntent(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreatePaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	result, err := services.GetOrderService().CreateOrCompletePaymentIntent(c.Request.Context(), req.OrderID, user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"clientSecret": result.ClientSecret,
		"data":         result,
	})
}

// PaymentWebhook handles POST /api/payments/webhook - the gateway's asynchronous callback.
// The raw body is needed for signature verification, so it must not be bound.
func PaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		respondError(c, apperrors.Validation("webhook payload is too large or unreadable"))
		return
	}

	err = services.GetOrderService().HandleWebhookEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// GetPaymentStatus handles GET /api/payments/status/:orderId (order parties only)
func GetPaymentStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	view, err := services.GetOrderService().GetPaymentStatus(c.Request.Context(), c.Param("orderId"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"paymentStatus": view.PaymentStatus,
		"paymentId":     view.PaymentID,
		"data":          view,
	})
}

package controllers

import (
	"net/http"

	"github.com/farmlink/orders-api/apperrors"
	"github.com/farmlink/orders-api/models"
	"github.com/farmlink/orders-api/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ConsumerDetailsRequest is the delivery snapshot sent with a new order
type ConsumerDetailsRequest struct {
	FullName             string  `json:"fullName" binding:"required"`
	Phone                string  `json:"phone" binding:"required"`
	Address              string  `json:"address" binding:"required"`
	DeliveryInstructions *string `json:"deliveryInstructions"`
}

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	ProductID       uint                   `json:"productId" binding:"required"`
	FarmerID        uint                   `json:"farmerId" binding:"required"`
	Quantity        int                    `json:"quantity" binding:"required,gt=0"`
	TotalPrice      *decimal.Decimal       `json:"totalPrice" binding:"required"`
	ConsumerDetails ConsumerDetailsRequest `json:"consumerDetails" binding:"required"`
}

// UpdateOrderStatusRequest represents the request body for a farmer's status change
type UpdateOrderStatusRequest struct {
	Status          string `json:"status" binding:"required"`
	RejectionReason string `json:"rejectionReason"`
}

// SubmitReviewRequest represents the request body for reviewing a completed order
type SubmitReviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// CreateOrder handles POST /api/orders - places a new order (consumers only)
func CreateOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.Role != models.RoleConsumer {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only consumers can place orders",
			},
		})
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	order, err := services.GetOrderService().CreateOrder(c.Request.Context(), services.CreateOrderInput{
		ConsumerID: user.ID,
		FarmerID:   req.FarmerID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		TotalPrice: *req.TotalPrice,
		ConsumerDetails: models.ConsumerDetails{
			FullName:             req.ConsumerDetails.FullName,
			Phone:                req.ConsumerDetails.Phone,
			Address:              req.ConsumerDetails.Address,
			DeliveryInstructions: req.ConsumerDetails.DeliveryInstructions,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    order,
	})
}

// ListConsumerOrders handles GET /api/orders/consumer - lists the caller's purchases
func ListConsumerOrders(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}

	orders, total, err := services.GetOrderService().ListConsumerOrders(c.Request.Context(), user.ID, page)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       orders,
		"pagination": pagination(page, total),
	})
}

// ListFarmerOrders handles GET /api/orders/farmer - lists orders for the caller's products (farmers only)
func ListFarmerOrders(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if !user.IsFarmer() {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only farmers can list received orders",
			},
		})
		return
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}

	orders, total, err := services.GetOrderService().ListFarmerOrders(c.Request.Context(), user.ID, page)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       orders,
		"pagination": pagination(page, total),
	})
}

// GetOrder handles GET /api/orders/:orderId
func GetOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	order, err := services.GetOrderService().GetOrder(c.Request.Context(), c.Param("orderId"), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// UpdateOrderStatus handles PUT|PATCH /api/orders/:orderId/status (owning farmer only)
func UpdateOrderStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	order, err := services.GetOrderService().UpdateFulfillmentStatus(
		c.Request.Context(),
		c.Param("orderId"),
		user.ID,
		models.OrderStatus(req.Status),
		req.RejectionReason,
	)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// SubmitReview handles POST /api/orders/:orderId/review (ordering consumer only)
func SubmitReview(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		respondError(c, apperrors.Validation("rating must be between 1 and 5"))
		return
	}

	review, err := services.GetOrderService().SubmitReview(c.Request.Context(), c.Param("orderId"), user.ID, req.Rating, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    review,
	})
}

package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/farmlink/orders-api/apperrors"
	"github.com/farmlink/orders-api/config"
	"github.com/farmlink/orders-api/models"
	"github.com/farmlink/orders-api/repository"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateProductRequest represents the request body for a new listing
type CreateProductRequest struct {
	Name  string           `json:"name" binding:"required,min=1,max=200"`
	Unit  string           `json:"unit" binding:"omitempty,max=20"`
	Price *decimal.Decimal `json:"price" binding:"required"`
	Stock int              `json:"stock" binding:"gte=0"`
}

// CreateProduct handles POST /api/products - lists a product (farmers only)
func CreateProduct(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if !user.IsFarmer() {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only farmers can list products",
			},
		})
		return
	}

	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if req.Price.IsNegative() || !req.Price.Equal(req.Price.Round(2)) {
		respondError(c, apperrors.Validation("price must be non-negative with at most 2 decimal places"))
		return
	}

	product := models.Product{
		FarmerID: user.ID,
		Name:     req.Name,
		Unit:     req.Unit,
		Price:    *req.Price,
		Stock:    req.Stock,
		Listed:   true,
	}
	if product.Unit == "" {
		product.Unit = "kg"
	}

	products := repository.NewProductRepository(config.GetDB())
	if err := products.Create(c.Request.Context(), &product); err != nil {
		respondError(c, apperrors.Persistence(err, "failed to create product"))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    product,
	})
}

// ListProducts handles GET /api/products - listed products, optionally ?farmerId=
func ListProducts(c *gin.Context) {
	var farmerID uint
	if raw := c.Query("farmerId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, apperrors.Validation("farmerId must be a positive integer"))
			return
		}
		farmerID = uint(id)
	}
	page, ok := parsePage(c)
	if !ok {
		return
	}

	products, total, err := repository.NewProductRepository(config.GetDB()).ListListed(c.Request.Context(), farmerID, page)
	if err != nil {
		respondError(c, apperrors.Persistence(err, "failed to list products"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       products,
		"pagination": pagination(page, total),
	})
}

// GetProduct handles GET /api/products/:productId
func GetProduct(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("productId"), 10, 64)
	if err != nil {
		respondError(c, apperrors.Validation("invalid product id"))
		return
	}

	product, err := repository.NewProductRepository(config.GetDB()).FindProduct(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, apperrors.NotFound("product %d not found", id))
			return
		}
		respondError(c, apperrors.Persistence(err, "failed to load product"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    product,
	})
}

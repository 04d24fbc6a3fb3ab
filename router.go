package main

import (
	"net/http"
	"time"

	"github.com/farmlink/orders-api/config"
	"github.com/farmlink/orders-api/controllers"
	"github.com/farmlink/orders-api/metrics"
	"github.com/farmlink/orders-api/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// setupRouter builds the HTTP surface. protected runs in front of every
// authenticated route; production passes token validation and revocation checks.
func setupRouter(cfg *config.Config, protected ...gin.HandlerFunc) *gin.Engine {
	if cfg.IsTest() {
		gin.SetMode(gin.TestMode)
	} else if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	router.NoRoute(controllers.RouteNotFound)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", healthCheck)
		api.GET("/database/status", databaseStatus)

		// Signed by the payment gateway, not by a user token
		api.POST("/payments/webhook", controllers.PaymentWebhook)
	}

	authed := api.Group("")
	authed.Use(protected...)
	{
		authed.POST("/auth/logout", controllers.Logout)

		authed.POST("/users", controllers.CreateUser)
		authed.GET("/users/me", controllers.GetMyProfile)
		authed.PUT("/users/me", controllers.UpdateMyProfile)

		authed.POST("/products", controllers.CreateProduct)
		authed.GET("/products", controllers.ListProducts)
		authed.GET("/products/:productId", controllers.GetProduct)

		authed.POST("/orders", controllers.CreateOrder)
		authed.GET("/orders/consumer", controllers.ListConsumerOrders)
		authed.GET("/orders/farmer", controllers.ListFarmerOrders)
		authed.GET("/orders/:orderId", controllers.GetOrder)
		authed.PUT("/orders/:orderId/status", controllers.UpdateOrderStatus)
		authed.PATCH("/orders/:orderId/status", controllers.UpdateOrderStatus)
		authed.POST("/orders/:orderId/review", controllers.SubmitReview)

		authed.POST("/payments/create-payment-intent", controllers.CreatePaymentIntent)
		authed.GET("/payments/status/:orderId", controllers.GetPaymentStatus)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// cors.New panics without any allowed origin
	if len(origins) == 0 {
		c.AllowOrigins = nil
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	}
	return c
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "FarmLink orders API is running",
	})
}

// databaseStatus checks database connectivity and reports pending outbox messages
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Database is not configured",
			},
		})
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	var pending int64
	if err := db.WithContext(c.Request.Context()).Table("outbox_messages").Count(&pending).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query outbox",
			},
		})
		return
	}

	stats := sqlDB.Stats()
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"message":          "Database connected",
		"open_connections": stats.OpenConnections,
		"pending_events":   pending,
	})
}

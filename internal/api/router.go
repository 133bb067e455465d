// Package api contains the HTTP handlers and routing for the payment service.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, serviceAPIKey, ginMode string, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())

	// Operational endpoints (no auth required)
	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Internal API, called by the booking backend
	v1 := router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		payments.Use(ServiceAuthMiddleware(serviceAPIKey))
		{
			payments.POST("/checkout", handler.CreateCheckout)
			payments.GET("/:reference", handler.GetPayment)
		}
	}

	// Provider-facing endpoints. These carry no shared secret (the browser
	// and Pesapal cannot send one); reconciliation never trusts their input.
	router.GET("/payments/callback", handler.HandleCallback)
	router.GET("/payments/ipn", handler.HandleIPN)
	router.POST("/payments/ipn", handler.HandleIPN)

	// Paystack signs its webhook body; the handler validates it.
	router.POST("/payments/webhook/paystack", handler.HandlePaystackWebhook)

	return router
}

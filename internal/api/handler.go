package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/catalog"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	checkoutService *service.CheckoutService
	dependencies    map[string]Pinger
}

// NewHandler creates a new HTTP handler; dependencies are pinged by /ready.
func NewHandler(checkoutService *service.CheckoutService, dependencies map[string]Pinger) *Handler {
	return &Handler{
		checkoutService: checkoutService,
		dependencies:    dependencies,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/cart/discounts", h.calculateCartDiscounts)
		v1.POST("/reservations/release", h.releaseReservation)
		v1.GET("/checkouts/:id", h.getCheckout)
		v1.POST("/coupons/validate", h.validateCoupon)
		v1.GET("/products", h.listProducts)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// calculateCartDiscounts prices a cart and optionally reserves its stock
func (h *Handler) calculateCartDiscounts(c *gin.Context) {
	var req service.CheckoutRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	report, err := h.checkoutService.CalculateCartDiscounts(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, report)
		return
	}

	c.JSON(http.StatusOK, report)
}

// releaseReservation gives reserved stock back
func (h *Handler) releaseReservation(c *gin.Context) {
	var req service.ReleaseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	queued, err := h.checkoutService.ReleaseReservation(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	if queued {
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "checkout_id": req.CheckoutID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "released", "checkout_id": req.CheckoutID})
}

// getCheckout returns a stored checkout report
func (h *Handler) getCheckout(c *gin.Context) {
	report, err := h.checkoutService.GetCheckout(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, report)
}

// validateCoupon checks a code against a cart without pricing it
func (h *Handler) validateCoupon(c *gin.Context) {
	var req service.CouponRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.checkoutService.ValidateCoupon(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, result)
}

// listProducts returns the catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.checkoutService.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
	})
}

// writeError maps error kinds to status codes. The report is included when the
// checkout priced the cart but failed afterwards.
func writeError(c *gin.Context, err error, report *models.CartDiscountReport) {
	status, message := http.StatusInternalServerError, "Internal error"

	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		status, message = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, models.ErrProductNotFound):
		status, message = http.StatusNotFound, "Product not found"
	case errors.Is(err, models.ErrCheckoutNotFound):
		status, message = http.StatusNotFound, "Checkout not found"
	case errors.Is(err, models.ErrInvalidDiscountCode):
		status, message = http.StatusUnprocessableEntity, "Invalid discount code"
	case errors.Is(err, models.ErrInsufficientInventory):
		status, message = http.StatusConflict, "Insufficient inventory"
	case models.IsRetryable(err):
		status, message = http.StatusServiceUnavailable, "Temporarily unavailable"
		c.Header("Retry-After", "1")
	case errors.Is(err, models.ErrInvalidPriceCalculation):
		message = "Invalid price calculation"
	case errors.Is(err, catalog.ErrListingUnsupported):
		status, message = http.StatusNotImplemented, "Not supported"
	}

	body := gin.H{
		"error":     message,
		"details":   err.Error(),
		"retryable": models.IsRetryable(err),
	}
	if report != nil {
		body["report"] = report
	}
	c.JSON(status, body)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

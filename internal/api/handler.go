package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"jajanin-relay/internal/checkout"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/service"
	"jajanin-relay/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TabHeader identifies the browser tab a request comes from. Each tab holds at most one
// payment session.
const TabHeader = "X-Tab-ID"

// NotificationSink hands push confirmations to the confirmation workers.
type NotificationSink interface {
	PublishNotification(ctx context.Context, event *models.PaymentNotificationEvent) error
}

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	checkout      *service.CheckoutService
	confirmations *service.ConfirmationService
	sink          NotificationSink
	checks        map[string]ReadinessCheck
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler. When sink is nil push confirmations are
// applied in-process.
func NewHandler(checkoutService *service.CheckoutService, confirmations *service.ConfirmationService, sink NotificationSink) *Handler {
	return &Handler{
		checkout:      checkoutService,
		confirmations: confirmations,
		sink:          sink,
		checks:        make(map[string]ReadinessCheck),
		logger:        util.ComponentLogger("api"),
	}
}

// AddReadinessCheck registers a dependency probed by /ready.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(util.PrometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Idempotency-Key", TabHeader},
		ExposeHeaders:   []string{TabHeader},
		MaxAge:          12 * time.Hour,
	}))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/config", h.getConfig)
		v1.GET("/quote", h.getQuote)

		co := v1.Group("/checkout", tabMiddleware())
		co.POST("", h.openCheckout)
		co.GET("", h.getCheckout)
		co.POST("/check", h.checkPayment)
		co.POST("/cancel", h.cancelPayment)
		co.POST("/dismiss", h.dismiss)
		co.POST("/reopen", h.reopen)
		co.POST("/resume", h.resume)

		v1.POST("/payment/notify", h.notifyPayment)
	}
}

// tabMiddleware assigns a tab ID to callers that did not send one.
func tabMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.GetHeader(TabHeader)
		if tabID == "" {
			tabID = uuid.New().String()
		}
		c.Set("tab_id", tabID)
		c.Header(TabHeader, tabID)
		c.Next()
	}
}

func tabID(c *gin.Context) string {
	return c.GetString("tab_id")
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
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

func (h *Handler) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.checkout.Config(c.Request.Context()))
}

func (h *Handler) getQuote(c *gin.Context) {
	unitPrice, err := strconv.ParseInt(c.Query("unit_price"), 10, 64)
	if err != nil || unitPrice < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unit_price"})
		return
	}
	qty := 1
	if q := c.Query("quantity"); q != "" {
		if qty, err = strconv.Atoi(q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quantity"})
			return
		}
	}

	quote, err := h.checkout.Quote(c.Request.Context(), unitPrice, qty)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amount too large"})
		return
	}
	c.JSON(http.StatusOK, quote)
}

// openCheckout handles checkout creation
func (h *Handler) openCheckout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	view, err := h.checkout.Open(c.Request.Context(), tabID(c), c.GetHeader("Idempotency-Key"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if view.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, view)
}

func (h *Handler) getCheckout(c *gin.Context) {
	view, err := h.checkout.Current(tabID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// checkPayment handles the buyer's "check status" action
func (h *Handler) checkPayment(c *gin.Context) {
	view, err := h.checkout.Check(c.Request.Context(), tabID(c))
	h.respondView(c, view, err)
}

func (h *Handler) cancelPayment(c *gin.Context) {
	view, err := h.checkout.Cancel(c.Request.Context(), tabID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) dismiss(c *gin.Context) {
	h.checkout.Dismiss(tabID(c))
	c.Status(http.StatusNoContent)
}

func (h *Handler) reopen(c *gin.Context) {
	view, err := h.checkout.Reopen(tabID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// resume handles the buyer returning from a wallet app
func (h *Handler) resume(c *gin.Context) {
	view, err := h.checkout.Resume(c.Request.Context(), tabID(c))
	h.respondView(c, view, err)
}

type notifyRequest struct {
	EventID string `json:"event_id"`
	OrderID string `json:"order_id" binding:"required"`
	Status  string `json:"status" binding:"required"`
}

// notifyPayment accepts a push confirmation relayed from the payment gateway
func (h *Handler) notifyPayment(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.NotificationsProcessedTotal.WithLabelValues("malformed").Inc()
		h.logger.Warn("Dropping malformed payment notification", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid notification",
			"details": err.Error(),
		})
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.New().String()
	}

	event := &models.PaymentNotificationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   req.EventID,
			EventType: models.EventTypePaymentNotified,
			Timestamp: time.Now(),
		},
		OrderID:    req.OrderID,
		StatusCode: req.Status,
	}

	var err error
	if h.sink != nil {
		err = h.sink.PublishNotification(c.Request.Context(), event)
	} else {
		err = h.confirmations.HandlePaymentNotification(c.Request.Context(), event)
	}
	if err != nil {
		h.logger.Error("Failed to accept payment notification", zap.String("order_id", req.OrderID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Notification not accepted"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"event_id": event.EventID})
}

// respondView reports a session even when its status could not be refreshed.
func (h *Handler) respondView(c *gin.Context, view *service.View, err error) {
	if err != nil && !errors.Is(err, checkout.ErrStatusUnknown) {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":        view.Session,
		"visible":        view.Visible,
		"resumed":        view.Resumed,
		"status_unknown": err != nil,
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var ve *checkout.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, checkout.ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "No payment session"})
	default:
		h.logger.Error("Checkout request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Payment backend unavailable",
			"details": err.Error(),
		})
	}
}

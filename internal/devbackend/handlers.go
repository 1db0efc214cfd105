package devbackend

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jajanin-relay/internal/models"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

func respondData(c *gin.Context, status int, msg string, data interface{}) {
	c.JSON(status, gin.H{"success": true, "message": msg, "data": data})
}

func (s *Server) getConfig(c *gin.Context) {
	s.hit("config")
	s.mu.Lock()
	fee := s.feePercent
	s.mu.Unlock()
	respondData(c, http.StatusOK, "", gin.H{"admin_fee_percent": fee})
}

func (s *Server) createDonation(c *gin.Context) {
	s.hit("create_donation")

	var req models.DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.BuyerName) == "" || req.Amount <= 0 {
		respondError(c, http.StatusBadRequest, "buyer_name and a positive amount are required")
		return
	}

	cr, ok := s.resolve(req.CreatorUsername)
	if !ok {
		respondError(c, http.StatusNotFound, "Creator not found")
		return
	}

	alert := models.AlertEvent{
		SupporterName: req.BuyerName,
		Amount:        req.Amount,
		Message:       req.Message,
		CreatorName:   cr.username,
		Quantity:      req.Quantity,
	}
	if req.ProductID != "" {
		s.mu.Lock()
		p, ok := s.products[req.ProductID]
		s.mu.Unlock()
		if !ok {
			respondError(c, http.StatusNotFound, "Product not found")
			return
		}
		alert.ProductName = p.name
		alert.ProductEmoji = p.emoji
	}

	d := &donation{
		orderID:         newOrderID(),
		platformTradeNo: newTradeNo(),
		creator:         cr.username,
		alert:           alert,
		code:            models.StatusCodePending,
	}
	s.mu.Lock()
	s.donations[d.orderID] = d
	s.mu.Unlock()

	s.logger.Info("Donation created",
		zap.String("order_id", d.orderID),
		zap.String("creator", cr.username),
		zap.Int64("amount", req.Amount),
		zap.String("method", req.PaymentMethod))

	resp := models.DonationResponse{
		Token:           d.orderID,
		PlatformTradeNo: d.platformTradeNo,
		ExpiredTime:     time.Now().Add(s.opts.QRValidity).Format("20060102150405"),
	}
	method := req.PaymentMethod
	if method == "" || method == models.PaymentMethodQRIS {
		resp.PaymentType = models.PaymentMethodQRIS
		resp.QRISURL = "https://qr.jajanin.test/" + d.orderID
		resp.QRCode = "00020101021226" + d.platformTradeNo
	} else {
		resp.PaymentType = method
		resp.PaymentURL = fmt.Sprintf("https://pay.jajanin.test/%s?redirect=%s", d.orderID, url.QueryEscape(req.RedirectURL))
	}

	respondData(c, http.StatusCreated, "Donation created", resp)
}

func (s *Server) paymentStatus(c *gin.Context) {
	s.hit("lookup")
	orderID := c.Param("orderID")

	s.mu.Lock()
	failing := s.statusFailure
	d, ok := s.donations[orderID]
	var code string
	var amount int64
	if ok {
		code, amount = d.code, d.alert.Amount
	}
	s.mu.Unlock()

	if failing {
		respondError(c, http.StatusInternalServerError, "Payment gateway unavailable")
		return
	}
	if !ok {
		respondData(c, http.StatusOK, "", gin.H{"status": "error", "order_id": orderID})
		return
	}

	respondData(c, http.StatusOK, "", gin.H{
		"status":   code,
		"order_id": orderID,
		"amount":   amount,
	})
}

func (s *Server) cancelPayment(c *gin.Context) {
	s.hit("cancel")

	var req struct {
		MerchantTradeNo string `json:"merchant_trade_no"`
		PlatformTradeNo string `json:"platform_trade_no"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.MerchantTradeNo == "" {
		respondError(c, http.StatusBadRequest, "merchant_trade_no is required")
		return
	}

	s.mu.Lock()
	d, ok := s.donations[req.MerchantTradeNo]
	if ok && d.code == models.StatusCodePending {
		d.code = models.StatusCodeFailed
	}
	s.mu.Unlock()

	if !ok {
		respondError(c, http.StatusNotFound, "Order not found")
		return
	}
	respondData(c, http.StatusOK, "Payment cancelled", nil)
}

func (s *Server) streamAlerts(c *gin.Context) {
	s.hit("stream")

	s.mu.Lock()
	reject := s.streamRejects > 0
	if reject {
		s.streamRejects--
	}
	s.mu.Unlock()
	if reject {
		respondError(c, http.StatusServiceUnavailable, "Stream temporarily unavailable")
		return
	}

	cr, ok := s.resolve(c.Param("key"))
	if !ok {
		respondError(c, http.StatusNotFound, "Invalid stream key")
		return
	}

	sub := s.hub.register(cr.username)
	defer s.hub.unregister(cr.username, sub)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	_ = sse.Encode(c.Writer, sse.Event{
		Event: "connected",
		Data:  gin.H{"message": "Connected to alert stream", "username": cr.username},
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case f := <-sub.send:
			if err := sse.Encode(c.Writer, sse.Event{Event: f.event, Data: f.data}); err != nil {
				return
			}
			c.Writer.Flush()

		case <-heartbeat.C:
			_, _ = c.Writer.Write([]byte(": heartbeat\n\n"))
			c.Writer.Flush()

		case <-sub.done:
			return

		case <-c.Request.Context().Done():
			return
		}
	}
}

func (s *Server) testAlert(c *gin.Context) {
	s.hit("test_alert")

	cr, ok := s.resolve(c.Param("key"))
	if !ok {
		respondError(c, http.StatusNotFound, "Invalid stream key")
		return
	}

	s.Publish(cr.username, models.AlertEvent{
		SupporterName: "Test User",
		Amount:        10000,
		Message:       "Ini adalah test alert! 🎉",
		CreatorName:   cr.username,
	})

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Test alert sent",
		"client_count": s.hub.count(cr.username),
	})
}

func (s *Server) alertSettings(c *gin.Context) {
	s.hit("settings")

	cr, ok := s.resolve(c.Param("key"))
	if !ok {
		respondError(c, http.StatusNotFound, "Invalid stream key")
		return
	}

	s.mu.Lock()
	settings := cr.settings
	s.mu.Unlock()
	respondData(c, http.StatusOK, "", settings)
}

func (s *Server) simulate(apply func(orderID string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !apply(c.Param("orderID")) {
			respondError(c, http.StatusNotFound, "order not pending")
			return
		}
		respondData(c, http.StatusOK, "", gin.H{"order_id": c.Param("orderID")})
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jajanin-relay/internal/backend"
	"jajanin-relay/internal/checkout"
	"jajanin-relay/internal/devbackend"
	"jajanin-relay/internal/feeconfig"
	"jajanin-relay/internal/models"
	"jajanin-relay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	events []*models.PaymentNotificationEvent
	err    error
}

func (s *captureSink) PublishNotification(ctx context.Context, event *models.PaymentNotificationEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type testAPI struct {
	dev     *devbackend.Server
	router  *gin.Engine
	handler *Handler
}

func setupAPI(t *testing.T, sink NotificationSink) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dev := devbackend.New(devbackend.Options{})
	dev.AddCreator("budi", "sk-budi")
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)

	client := backend.NewClient(srv.URL, 5*time.Second)
	fees := feeconfig.NewCache(client, 0.5)
	guard := service.NewTerminalGuard(nil, nil, 0)
	registry := checkout.NewRegistry(client, fees, checkout.NewMemoryPendingStore(), nil, checkout.Options{})

	h := NewHandler(
		service.NewCheckoutService(registry, fees, nil, nil),
		service.NewConfirmationService(registry, nil, guard, nil),
		sink,
	)
	router := gin.New()
	h.SetupRoutes(router)
	return &testAPI{dev: dev, router: router, handler: h}
}

func (a *testAPI) do(method, path, tab string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tab != "" {
		req.Header.Set(TabHeader, tab)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type viewBody struct {
	Session       checkout.Snapshot `json:"session"`
	Visible       bool              `json:"visible"`
	Resumed       bool              `json:"resumed"`
	StatusUnknown bool              `json:"status_unknown"`
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) viewBody {
	t.Helper()
	var v viewBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

var qrisBody = gin.H{
	"creator_username": "budi",
	"buyer_name":       "Sari",
	"buyer_email":      "sari@example.com",
	"unit_price":       15000,
	"quantity":         1,
	"payment_method":   "qris",
}

func TestHealthAndReady(t *testing.T) {
	a := setupAPI(t, nil)

	w := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	a.handler.AddReadinessCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })
	w = a.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestCheckoutFlow(t *testing.T) {
	a := setupAPI(t, nil)

	w := a.do(http.MethodPost, "/api/v1/checkout", "tab-1", qrisBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "tab-1", w.Header().Get(TabHeader))
	opened := decodeView(t, w)
	assert.Equal(t, int64(15075), opened.Session.Amount)
	assert.NotNil(t, opened.Session.QR)

	w = a.do(http.MethodPost, "/api/v1/checkout", "tab-1", qrisBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeView(t, w).Resumed)

	require.True(t, a.dev.Settle(opened.Session.OrderID))
	w = a.do(http.MethodPost, "/api/v1/checkout/check", "tab-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	checked := decodeView(t, w)
	assert.Equal(t, models.PaymentStatusPaid, checked.Session.Status)
	assert.False(t, checked.StatusUnknown)
}

func TestCheckoutGeneratesTabID(t *testing.T) {
	a := setupAPI(t, nil)

	w := a.do(http.MethodPost, "/api/v1/checkout", "", qrisBody)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get(TabHeader))
}

func TestCheckoutValidation(t *testing.T) {
	a := setupAPI(t, nil)

	body := gin.H{
		"creator_username": "budi",
		"buyer_name":       "Sari",
		"buyer_email":      "sari@example.com",
		"unit_price":       5000,
		"payment_method":   "gopay",
	}
	w := a.do(http.MethodPost, "/api/v1/checkout", "tab-1", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "minimum e-wallet 10.000")
	assert.Equal(t, 0, a.dev.Requests("create_donation"))

	w = a.do(http.MethodPost, "/api/v1/checkout", "tab-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckStatusUnknown(t *testing.T) {
	a := setupAPI(t, nil)

	w := a.do(http.MethodPost, "/api/v1/checkout", "tab-1", qrisBody)
	require.Equal(t, http.StatusCreated, w.Code)

	a.dev.FailStatusLookups(true)
	w = a.do(http.MethodPost, "/api/v1/checkout/check", "tab-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decodeView(t, w)
	assert.True(t, v.StatusUnknown)
	assert.Equal(t, models.PaymentStatusPending, v.Session.Status)
}

func TestNoSession(t *testing.T) {
	a := setupAPI(t, nil)

	for _, path := range []string{"/api/v1/checkout/check", "/api/v1/checkout/cancel", "/api/v1/checkout/reopen", "/api/v1/checkout/resume"} {
		w := a.do(http.MethodPost, path, "tab-empty", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := a.do(http.MethodGet, "/api/v1/checkout", "tab-empty", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDismissReopenCancel(t *testing.T) {
	a := setupAPI(t, nil)

	w := a.do(http.MethodPost, "/api/v1/checkout", "tab-1", qrisBody)
	require.Equal(t, http.StatusCreated, w.Code)

	w = a.do(http.MethodPost, "/api/v1/checkout/dismiss", "tab-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(http.MethodGet, "/api/v1/checkout", "tab-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeView(t, w).Visible)

	w = a.do(http.MethodPost, "/api/v1/checkout/reopen", "tab-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeView(t, w).Visible)

	w = a.do(http.MethodPost, "/api/v1/checkout/cancel", "tab-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PaymentStatusCancelled, decodeView(t, w).Session.Status)
}

func TestQuoteAndConfig(t *testing.T) {
	a := setupAPI(t, nil)

	w := a.do(http.MethodGet, "/api/v1/quote?unit_price=10000&quantity=3", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var q feeconfig.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.Equal(t, int64(30000), q.Subtotal)
	assert.Equal(t, int64(150), q.AdminFee)
	assert.Equal(t, int64(30150), q.Total)

	w = a.do(http.MethodGet, "/api/v1/quote?unit_price=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, "/api/v1/quote?unit_price=4&quantity=4611686018427387905", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodGet, "/api/v1/config", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"admin_fee_percent":"0.5"`)
}

func TestNotifyAppliesInProcess(t *testing.T) {
	a := setupAPI(t, nil)

	w := a.do(http.MethodPost, "/api/v1/checkout", "tab-1", qrisBody)
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeView(t, w).Session.OrderID

	w = a.do(http.MethodPost, "/api/v1/payment/notify", "", gin.H{"order_id": orderID, "status": "02"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = a.do(http.MethodGet, "/api/v1/checkout", "tab-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PaymentStatusPaid, decodeView(t, w).Session.Status)
	assert.Equal(t, 0, a.dev.Requests("lookup"))
}

func TestNotifyPublishesToSink(t *testing.T) {
	sink := &captureSink{}
	a := setupAPI(t, sink)

	w := a.do(http.MethodPost, "/api/v1/payment/notify", "", gin.H{"event_id": "evt-1", "order_id": "JJN-1", "status": "09"})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "evt-1", sink.events[0].EventID)
	assert.Equal(t, models.EventTypePaymentNotified, sink.events[0].EventType)

	w = a.do(http.MethodPost, "/api/v1/payment/notify", "", gin.H{"order_id": "JJN-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sink.err = errors.New("broker down")
	w = a.do(http.MethodPost, "/api/v1/payment/notify", "", gin.H{"order_id": "JJN-1", "status": "02"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

package models

import "time"

// Event types
const (
	EventTypePaymentOpened    = "PAYMENT_OPENED"
	EventTypePaymentPaid      = "PAYMENT_PAID"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
	EventTypePaymentCancelled = "PAYMENT_CANCELLED"
	EventTypePaymentExpired   = "PAYMENT_EXPIRED"
	EventTypePaymentNotified  = "PAYMENT_NOTIFIED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentLifecycleEvent is published whenever a payment session opens or reaches a terminal status.
type PaymentLifecycleEvent struct {
	BaseEvent
	OrderID         string        `json:"order_id"`
	PlatformTradeNo string        `json:"platform_trade_no,omitempty"`
	Amount          int64         `json:"amount"`
	Method          string        `json:"method,omitempty"`
	Status          PaymentStatus `json:"status"`
}

// PaymentNotificationEvent is a push confirmation relayed from the backend's gateway webhook.
type PaymentNotificationEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	StatusCode string `json:"status"`
}

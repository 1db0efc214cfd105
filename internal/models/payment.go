package models

import "time"

// PaymentStatus is the client-side status of a checkout attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Backend status codes returned by the payment status lookup.
const (
	StatusCodePending = "01"
	StatusCodePaid    = "02"
	StatusCodeFailed  = "09"
)

// Final reports whether no further transition is allowed. Expired is advisory and not final.
func (s PaymentStatus) Final() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusCancelled, PaymentStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status ends the checkout from the UI's point of view.
func (s PaymentStatus) Terminal() bool {
	return s.Final() || s == PaymentStatusExpired
}

// PaymentMethodQRIS is the only method exempt from the e-wallet minimum.
const PaymentMethodQRIS = "qris"

// DonationRequest is the body of POST /api/v1/donations.
type DonationRequest struct {
	CreatorUsername string `json:"creator_username"`
	ProductID       string `json:"product_id,omitempty"`
	BuyerName       string `json:"buyer_name"`
	BuyerEmail      string `json:"buyer_email"`
	Amount          int64  `json:"amount"`
	Quantity        int    `json:"quantity,omitempty"`
	Message         string `json:"message,omitempty"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	RedirectURL     string `json:"redirect_url,omitempty"`
}

// DonationResponse carries either a QR payload or a wallet redirect.
type DonationResponse struct {
	QRISURL         string `json:"qris_url,omitempty"`
	QRCode          string `json:"qr_code,omitempty"`
	ExpiredTime     string `json:"expired_time,omitempty"`
	Token           string `json:"token,omitempty"`
	PlatformTradeNo string `json:"platform_trade_no,omitempty"`
	PaymentURL      string `json:"payment_url,omitempty"`
	PaymentType     string `json:"payment_type,omitempty"`
}

// IsRedirect reports whether the buyer must be handed off to a wallet app.
func (r *DonationResponse) IsRedirect() bool {
	return r.PaymentType != "" && r.PaymentType != PaymentMethodQRIS && r.PaymentURL != ""
}

// PendingPayment is the single record kept in session-scoped storage across a wallet redirect.
type PendingPayment struct {
	OrderID         string    `json:"order_id"`
	PlatformTradeNo string    `json:"platform_trade_no"`
	Amount          int64     `json:"amount"`
	CreatorUsername string    `json:"creator_username"`
	CreatedAt       time.Time `json:"created_at"`
}

// PaymentRecord is the server-side ledger row of one checkout attempt.
type PaymentRecord struct {
	OrderID         string        `db:"order_id" json:"order_id"`
	PlatformTradeNo string        `db:"platform_trade_no" json:"platform_trade_no"`
	TabID           string        `db:"tab_id" json:"tab_id"`
	CreatorUsername string        `db:"creator_username" json:"creator_username"`
	Amount          int64         `db:"amount" json:"amount"`
	Method          string        `db:"method" json:"method"`
	Status          PaymentStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

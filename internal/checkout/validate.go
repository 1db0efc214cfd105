package checkout

import (
	"errors"
	"strings"

	"jajanin-relay/internal/feeconfig"
	"jajanin-relay/internal/models"
)

// EWalletMinimum is the smallest total accepted for wallet payments. QRIS is exempt.
const EWalletMinimum int64 = 10000

// ErrBelowEWalletMinimum is wrapped by the ValidationError for a wallet total under the minimum.
var ErrBelowEWalletMinimum = errors.New("minimum e-wallet 10.000")

// ValidationError rejects a checkout request before anything is sent to the backend.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Request is what a buyer submits from the checkout form.
type Request struct {
	CreatorUsername string `json:"creator_username"`
	ProductID       string `json:"product_id,omitempty"`
	BuyerName       string `json:"buyer_name"`
	BuyerEmail      string `json:"buyer_email"`
	UnitPrice       int64  `json:"unit_price"`
	Quantity        int    `json:"quantity"`
	Message         string `json:"message,omitempty"`
	PaymentMethod   string `json:"payment_method"`
}

// Qty returns the quantity, defaulting to 1.
func (r Request) Qty() int {
	if r.Quantity <= 0 {
		return 1
	}
	return r.Quantity
}

// Subtotal is the price before the admin fee.
func (r Request) Subtotal() (int64, error) {
	return feeconfig.Subtotal(r.UnitPrice, r.Qty())
}

// Method returns the payment method, QRIS when none was chosen.
func (r Request) Method() string {
	m := strings.ToLower(strings.TrimSpace(r.PaymentMethod))
	if m == "" {
		return models.PaymentMethodQRIS
	}
	return m
}

// Validate checks a request against the total the buyer would be charged.
func Validate(req Request, total int64) error {
	if strings.TrimSpace(req.CreatorUsername) == "" {
		return &ValidationError{Field: "creator_username", Message: "creator is required"}
	}
	subtotal, err := req.Subtotal()
	if err != nil {
		field := "quantity"
		if req.Qty() == 1 {
			field = "amount"
		}
		return &ValidationError{Field: field, Message: field + " is too large", Err: err}
	}
	if subtotal <= 0 {
		return &ValidationError{Field: "amount", Message: "amount must be greater than 0"}
	}
	if strings.TrimSpace(req.BuyerName) == "" {
		return &ValidationError{Field: "buyer_name", Message: "name must not be empty"}
	}
	if !strings.Contains(req.BuyerEmail, "@") {
		return &ValidationError{Field: "buyer_email", Message: "invalid email"}
	}
	if req.Method() != models.PaymentMethodQRIS && total < EWalletMinimum {
		return &ValidationError{
			Field:   "payment_method",
			Message: ErrBelowEWalletMinimum.Error(),
			Err:     ErrBelowEWalletMinimum,
		}
	}
	return nil
}

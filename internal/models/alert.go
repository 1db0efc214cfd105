package models

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultProductEmoji is shown when a product alert arrives without an emoji.
const DefaultProductEmoji = "🍽️"

// AlertEvent is one donation notification pushed by the backend over the alert stream.
type AlertEvent struct {
	SupporterName string `json:"supporter_name" validate:"required"`
	Amount        int64  `json:"amount" validate:"gte=0"`
	Message       string `json:"message,omitempty"`
	CreatorName   string `json:"creator_name,omitempty"`
	ProductName   string `json:"product_name,omitempty"`
	ProductEmoji  string `json:"product_emoji,omitempty"`
	Quantity      int    `json:"quantity,omitempty" validate:"gte=0"`
}

// HasProduct reports whether the alert should be displayed as a product purchase.
func (a AlertEvent) HasProduct() bool {
	return strings.TrimSpace(a.ProductName) != ""
}

// Qty returns the purchased quantity, defaulting to 1.
func (a AlertEvent) Qty() int {
	if a.Quantity <= 0 {
		return 1
	}
	return a.Quantity
}

// DisplayText is the headline shown on the overlay and feeds: "3x ☕ Kopi" or "Rp 15.000".
// Amount stays the credited value either way.
func (a AlertEvent) DisplayText() string {
	if !a.HasProduct() {
		return FormatRupiah(a.Amount)
	}
	emoji := a.ProductEmoji
	if emoji == "" {
		emoji = DefaultProductEmoji
	}
	return fmt.Sprintf("%dx %s %s", a.Qty(), emoji, a.ProductName)
}

// SpeechText is the sentence read out by text-to-speech.
func (a AlertEvent) SpeechText() string {
	var text string
	if a.HasProduct() {
		text = fmt.Sprintf("%s jajanin %d %s", a.SupporterName, a.Qty(), a.ProductName)
	} else {
		text = fmt.Sprintf("%s memberi %s rupiah", a.SupporterName, FormatNumber(a.Amount))
	}

	if msg := strings.TrimSpace(a.Message); msg != "" {
		text += ". Pesannya: " + msg
	}
	return text
}

var idPrinter = message.NewPrinter(language.Indonesian)

// FormatNumber groups digits the Indonesian way (15000 -> "15.000").
func FormatNumber(n int64) string {
	return idPrinter.Sprintf("%d", n)
}

// FormatRupiah renders a minor-unit amount as "Rp 15.000".
func FormatRupiah(amount int64) string {
	return "Rp " + FormatNumber(amount)
}

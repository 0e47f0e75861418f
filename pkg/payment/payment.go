package payment

import (
	"context"
	"errors"
)

const (
	EventCheckoutCompleted           = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceed = "checkout.session.async_payment_succeeded"

	StatusUnpaid = "unpaid"

	DefaultCreditsPerUnit = 10
	MaxQuantity           = 10
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidQuantity  = errors.New("invalid quantity")
)

// CheckoutRequest starts a purchase for a user.
type CheckoutRequest struct {
	UserID   string
	Email    string
	Quantity int
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Event is the verified part of a webhook delivery we act on.
type Event struct {
	ID        string
	Type      string
	SessionID string
}

// Purchase is a checkout session re-read from the processor.
type Purchase struct {
	SessionID         string
	ClientReferenceID string
	Email             string
	PaymentStatus     string
	Quantity          int
}

// Paid reports whether credits may be granted for the purchase.
func (p Purchase) Paid() bool {
	return p.PaymentStatus != "" && p.PaymentStatus != StatusUnpaid
}

// Credits converts the purchased quantity into generation credits.
func (p Purchase) Credits(perUnit int) int {
	if perUnit <= 0 {
		perUnit = DefaultCreditsPerUnit
	}
	return p.Quantity * perUnit
}

// Processor is the payment provider.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (Event, error)
	GetPurchase(ctx context.Context, sessionID string) (Purchase, error)
}

package app

import (
	"context"
	"fmt"

	"waifugen/internal/util"
	"waifugen/pkg/domain"
	"waifugen/pkg/payment"
)

// WebhookResult reports what a webhook delivery changed.
type WebhookResult struct {
	EventType string `json:"eventType"`
	Handled   bool   `json:"handled"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Credits   int    `json:"credits,omitempty"`
}

// PaymentsEnabled reports whether a payment processor is configured.
func (a *App) PaymentsEnabled() bool {
	return a.payments != nil
}

// CreateCheckout opens a checkout session for quantity credit packs.
func (a *App) CreateCheckout(ctx context.Context, user domain.User, quantity int) (payment.CheckoutSession, error) {
	if a.payments == nil {
		return payment.CheckoutSession{}, ErrPaymentsDisabled
	}
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 || quantity > payment.MaxQuantity {
		return payment.CheckoutSession{}, ErrInvalidQuantity
	}
	return a.payments.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		UserID:   user.ID,
		Email:    user.Email,
		Quantity: quantity,
	})
}

// HandleWebhook verifies a processor delivery and grants the purchased credits
// once per checkout session. Unpaid sessions and other event types are
// acknowledged without changes.
func (a *App) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	if a.payments == nil {
		return WebhookResult{}, ErrPaymentsDisabled
	}
	logger := util.LoggerFromContext(ctx)
	event, err := a.payments.ParseWebhook(payload, signature)
	if err != nil {
		return WebhookResult{}, err
	}
	res := WebhookResult{EventType: event.Type}
	switch event.Type {
	case payment.EventCheckoutCompleted, payment.EventCheckoutAsyncPaymentSucceed:
	default:
		return res, nil
	}

	purchase, err := a.payments.GetPurchase(ctx, event.SessionID)
	if err != nil {
		return res, fmt.Errorf("load checkout session: %w", err)
	}
	if !purchase.Paid() {
		logger.Info("checkout session not paid yet", "session_id", purchase.SessionID, "status", purchase.PaymentStatus)
		return res, nil
	}
	user, ok, err := a.purchaser(ctx, purchase)
	if err != nil {
		return res, err
	}
	if !ok {
		logger.Warn("checkout session without matching user", "session_id", purchase.SessionID)
		return res, nil
	}

	credits := purchase.Credits(a.creditsPerUnit)
	applied, balance, err := a.store.FulfillPayment(ctx, domain.PaymentFulfillment{
		SessionID:     purchase.SessionID,
		UserID:        user.ID,
		Quantity:      purchase.Quantity,
		Credits:       credits,
		PaymentStatus: purchase.PaymentStatus,
		CreatedAt:     a.now(),
	})
	if err != nil {
		return res, fmt.Errorf("fulfill payment: %w", err)
	}
	res.Handled = true
	res.Duplicate = !applied
	if applied {
		res.Credits = credits
		a.metrics.CreditsGranted(credits)
		logger.Info("credits granted", "user_id", user.ID, "session_id", purchase.SessionID, "credits", credits, "balance", balance)
	}
	return res, nil
}

func (a *App) purchaser(ctx context.Context, p payment.Purchase) (domain.User, bool, error) {
	if p.ClientReferenceID != "" {
		u, ok, err := a.store.GetUserByID(ctx, p.ClientReferenceID)
		if err != nil || ok {
			return u, ok, err
		}
	}
	if p.Email == "" {
		return domain.User{}, false, nil
	}
	return a.store.GetUserByEmail(ctx, normalizeEmail(p.Email))
}

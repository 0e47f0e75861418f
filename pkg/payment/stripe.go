package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	SuccessURL    string
	CancelURL     string
	// Backends overrides the API endpoint; nil uses Stripe.
	Backends *stripe.Backends
}

// StripeProcessor implements Processor with stripe-go.
type StripeProcessor struct {
	api           *client.API
	webhookSecret string
	priceID       string
	successURL    string
	cancelURL     string
}

func NewStripeProcessor(cfg StripeConfig) (*StripeProcessor, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("stripe secret key required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("stripe webhook secret required")
	}
	if strings.TrimSpace(cfg.PriceID) == "" {
		return nil, fmt.Errorf("stripe price id required")
	}
	return &StripeProcessor{
		api:           client.New(cfg.SecretKey, cfg.Backends),
		webhookSecret: cfg.WebhookSecret,
		priceID:       cfg.PriceID,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if req.Quantity < 1 || req.Quantity > MaxQuantity {
		return CheckoutSession{}, ErrInvalidQuantity
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(p.priceID),
			Quantity: stripe.Int64(int64(req.Quantity)),
		}},
		SuccessURL:        stripe.String(p.successURL),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(req.UserID),
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ParseWebhook verifies the Stripe-Signature header before decoding anything.
func (p *StripeProcessor) ParseWebhook(payload []byte, signature string) (Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data != nil && strings.HasPrefix(out.Type, "checkout.session.") {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return Event{}, fmt.Errorf("decode checkout session: %w", err)
		}
		out.SessionID = sess.ID
	}
	return out, nil
}

// GetPurchase re-reads the session with its line items expanded.
func (p *StripeProcessor) GetPurchase(ctx context.Context, sessionID string) (Purchase, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("line_items")
	params.Context = ctx
	sess, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return Purchase{}, fmt.Errorf("get checkout session: %w", err)
	}
	out := Purchase{
		SessionID:         sess.ID,
		ClientReferenceID: sess.ClientReferenceID,
		PaymentStatus:     string(sess.PaymentStatus),
		Email:             sess.CustomerEmail,
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		out.Email = sess.CustomerDetails.Email
	}
	if sess.LineItems != nil {
		for _, item := range sess.LineItems.Data {
			out.Quantity += int(item.Quantity)
		}
	}
	return out, nil
}

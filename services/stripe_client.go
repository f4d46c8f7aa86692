package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Pinak57/localchef-server/models"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
)

// EventCheckoutCompleted is the gateway event that settles a payment.
const EventCheckoutCompleted = "checkout.session.completed"

// ErrGatewayRejected marks a gateway failure that retrying cannot fix.
var ErrGatewayRejected = errors.New("payment gateway rejected request")

// CheckoutRequest describes one hosted checkout session.
type CheckoutRequest struct {
	OrderID        string
	MealName       string
	CustomerEmail  string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// GatewayEvent is a verified gateway notification.
type GatewayEvent struct {
	ID        string
	Type      string
	SessionID string
	OrderID   string
}

// PaymentGateway is the external payment provider.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*models.CheckoutSession, error)
	VerifyNotification(payload []byte, signatureHeader string) (*GatewayEvent, error)
}

type StripeService struct {
	sessions   *session.Client
	WebhookKey string
	SuccessURL string
	CancelURL  string
}

func NewStripeService(secretKey, webhookKey, frontendURL string) *StripeService {
	return NewStripeServiceWithBackend(stripe.GetBackend(stripe.APIBackend), secretKey, webhookKey, frontendURL)
}

// NewStripeServiceWithBackend lets callers point the client at another API host.
func NewStripeServiceWithBackend(backend stripe.Backend, secretKey, webhookKey, frontendURL string) *StripeService {
	return &StripeService{
		sessions:   &session.Client{B: backend, Key: secretKey},
		WebhookKey: webhookKey,
		SuccessURL: frontendURL + "/payment-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  frontendURL + "/payment-cancelled",
	}
}

func (s *StripeService) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.MealName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(req.OrderID),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		SuccessURL:        stripe.String(s.SuccessURL),
		CancelURL:         stripe.String(s.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	cs, err := s.sessions.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 &&
			stripeErr.HTTPStatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %v", ErrGatewayRejected, err)
		}
		return nil, err
	}
	return &models.CheckoutSession{SessionID: cs.ID, RedirectURL: cs.URL}, nil
}

// VerifyNotification checks the Stripe-Signature header and decodes the event.
func (s *StripeService) VerifyNotification(payload []byte, signatureHeader string) (*GatewayEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.WebhookKey,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, err
	}

	out := &GatewayEvent{ID: event.ID, Type: string(event.Type)}
	if out.Type == EventCheckoutCompleted && event.Data != nil {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.SessionID = cs.ID
		out.OrderID = cs.Metadata["order_id"]
		if out.OrderID == "" {
			out.OrderID = cs.ClientReferenceID
		}
	}
	return out, nil
}

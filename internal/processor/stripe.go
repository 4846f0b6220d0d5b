// Package processor adapts the Stripe API: hosted checkout sessions going
// out, signed webhook events coming in.
package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

// Config holds the Stripe credentials.
type Config struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string
	// WebhookSecret is the signing secret of the webhook endpoint (whsec_xxx)
	WebhookSecret string
	// IsTestMode requires a test key when set and a live key otherwise
	IsTestMode bool
}

// Validate checks that keys are present and match the mode.
func (c Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("stripe: webhook secret is required")
	}
	if c.IsTestMode {
		if !strings.HasPrefix(c.SecretKey, "sk_test") && !strings.HasPrefix(c.SecretKey, "rk_test") {
			return fmt.Errorf("stripe: test mode enabled but secret key is not a test key")
		}
	} else if !strings.HasPrefix(c.SecretKey, "sk_live") && !strings.HasPrefix(c.SecretKey, "rk_live") {
		return fmt.Errorf("stripe: live mode enabled but secret key is not a live key")
	}
	return nil
}

// SessionInput describes a single-line-item payment checkout.
type SessionInput struct {
	Currency    string
	ProductName string
	Description string
	UnitAmount  int64
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

// Session is the part of a created checkout session the caller needs.
type Session struct {
	ID  string
	URL string
}

// Stripe talks to the Stripe API with its own client rather than the
// package-level stripe.Key.
type Stripe struct {
	sessions session.Client
	logger   *zap.Logger
}

// Option customises a Stripe adapter.
type Option func(*Stripe)

// WithBackend replaces the API backend, e.g. to point at a stub server.
func WithBackend(b stripe.Backend) Option {
	return func(s *Stripe) { s.sessions.B = b }
}

// NewStripe validates cfg and returns an adapter.
func NewStripe(cfg Config, logger *zap.Logger, opts ...Option) (*Stripe, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Stripe{
		sessions: session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateCheckoutSession creates a hosted payment-mode checkout session.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, in SessionInput) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(in.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(in.ProductName),
						Description: stripe.String(in.Description),
					},
					UnitAmount: stripe.Int64(in.UnitAmount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
		Metadata:   in.Metadata,
	}
	params.Context = ctx

	cs, err := s.sessions.New(params)
	if err != nil {
		fields := []zap.Field{zap.Int64("amount", in.UnitAmount), zap.Error(err)}
		var serr *stripe.Error
		if errors.As(err, &serr) {
			fields = append(fields,
				zap.Int("stripe_status", serr.HTTPStatusCode),
				zap.String("stripe_code", string(serr.Code)),
				zap.String("stripe_request_id", serr.RequestID))
		}
		s.logger.Error("Failed to create Stripe checkout session", fields...)
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	s.logger.Info("Created Stripe checkout session",
		zap.String("session_id", cs.ID),
		zap.Int64("amount", in.UnitAmount))

	return &Session{ID: cs.ID, URL: cs.URL}, nil
}

// VerifySignedEvent checks the Stripe-Signature header against the exact raw
// payload before decoding it. Events signed for another API version are
// accepted; only the object fields we read matter.
func VerifySignedEvent(payload []byte, header, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

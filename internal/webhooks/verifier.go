// Package webhooks turns signed Stripe deliveries into gift ledger changes:
// verify the raw body, narrow the event, route it to one handler.
package webhooks

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v81"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/processor"
)

// Verifier authenticates webhook bodies with the endpoint's signing secret.
type Verifier struct {
	secret string
}

// NewVerifier binds a Verifier to the webhook signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify checks the signature over the unparsed body and only then decodes
// it. Every failure is apperrors.ErrVerification.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (Event, error) {
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing Stripe-Signature header", apperrors.ErrVerification)
	}
	evt, err := processor.VerifySignedEvent(payload, signatureHeader, v.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrVerification, err)
	}
	return narrow(evt)
}

func narrow(evt stripe.Event) (Event, error) {
	var raw json.RawMessage
	if evt.Data != nil {
		raw = evt.Data.Raw
	}

	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session: %v", apperrors.ErrVerification, err)
		}
		out := CheckoutCompleted{
			EventID:     evt.ID,
			SessionID:   cs.ID,
			AmountTotal: cs.AmountTotal,
			Currency:    string(cs.Currency),
			Metadata:    cs.Metadata,
			Raw:         raw,
		}
		if cs.PaymentIntent != nil {
			out.PaymentIntentID = cs.PaymentIntent.ID
		}
		return out, nil

	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: decode payment intent: %v", apperrors.ErrVerification, err)
		}
		return PaymentSucceeded{EventID: evt.ID, PaymentIntentID: pi.ID}, nil

	default:
		return Ignored{EventID: evt.ID, EventType: string(evt.Type)}, nil
	}
}

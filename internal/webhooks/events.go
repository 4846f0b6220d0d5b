package webhooks

import "encoding/json"

// Event is a verified Stripe event narrowed to what reconciliation reads.
// The set of implementations is closed: CheckoutCompleted,
// PaymentSucceeded and Ignored.
type Event interface {
	ID() string
	Type() string
	event()
}

// CheckoutCompleted is a checkout.session.completed event.
type CheckoutCompleted struct {
	EventID         string
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
	// Raw is the session object as delivered, kept for dead-lettering.
	Raw json.RawMessage
}

// PaymentSucceeded is a payment_intent.succeeded event.
type PaymentSucceeded struct {
	EventID         string
	PaymentIntentID string
}

// Ignored is any other event type. It is acknowledged and dropped.
type Ignored struct {
	EventID   string
	EventType string
}

const (
	TypeCheckoutCompleted = "checkout.session.completed"
	TypePaymentSucceeded  = "payment_intent.succeeded"
)

func (e CheckoutCompleted) ID() string   { return e.EventID }
func (e CheckoutCompleted) Type() string { return TypeCheckoutCompleted }
func (CheckoutCompleted) event()         {}

func (e PaymentSucceeded) ID() string   { return e.EventID }
func (e PaymentSucceeded) Type() string { return TypePaymentSucceeded }
func (PaymentSucceeded) event()         {}

func (e Ignored) ID() string   { return e.EventID }
func (e Ignored) Type() string { return e.EventType }
func (Ignored) event()         {}

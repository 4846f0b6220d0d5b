// Package metrics counts checkout and reconciliation outcomes. Recorders
// never fail the caller: export errors are logged and dropped.
package metrics

import "context"

// Outcome labels shared by the recorders.
const (
	OutcomeCreated   = "created"
	OutcomeInvalid   = "invalid"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
	OutcomeHandled   = "handled"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeDeferred  = "deferred"
	OutcomeRetried   = "retried"
	OutcomeGaveUp    = "gave_up"

	ReasonMissingMetadata = "missing_metadata"
	ReasonUnmatchedIntent = "unmatched_payment_intent"
)

// Recorder is implemented by Prometheus, CloudWatch, Fanout and Nop.
type Recorder interface {
	// CheckoutSession counts session issuance attempts by outcome.
	CheckoutSession(ctx context.Context, outcome string)
	// WebhookEvent counts webhook deliveries by Stripe event type and outcome.
	WebhookEvent(ctx context.Context, eventType, outcome string)
	// GiftTransition counts gift records entering a status.
	GiftTransition(ctx context.Context, status string)
	// EventDropped counts events acknowledged without a ledger change.
	EventDropped(ctx context.Context, reason string)
	// Confirmation counts deferred payment confirmations by outcome.
	Confirmation(ctx context.Context, outcome string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CheckoutSession(context.Context, string)      {}
func (Nop) WebhookEvent(context.Context, string, string) {}
func (Nop) GiftTransition(context.Context, string)       {}
func (Nop) EventDropped(context.Context, string)         {}
func (Nop) Confirmation(context.Context, string)         {}

// Fanout forwards to every recorder in order.
type Fanout []Recorder

func (f Fanout) CheckoutSession(ctx context.Context, outcome string) {
	for _, r := range f {
		r.CheckoutSession(ctx, outcome)
	}
}

func (f Fanout) WebhookEvent(ctx context.Context, eventType, outcome string) {
	for _, r := range f {
		r.WebhookEvent(ctx, eventType, outcome)
	}
}

func (f Fanout) GiftTransition(ctx context.Context, status string) {
	for _, r := range f {
		r.GiftTransition(ctx, status)
	}
}

func (f Fanout) EventDropped(ctx context.Context, reason string) {
	for _, r := range f {
		r.EventDropped(ctx, reason)
	}
}

func (f Fanout) Confirmation(ctx context.Context, outcome string) {
	for _, r := range f {
		r.Confirmation(ctx, outcome)
	}
}

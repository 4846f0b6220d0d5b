package webhooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
)

// Outcome reports what routing did with an event.
type Outcome string

const (
	OutcomeHandled Outcome = "handled"
	OutcomeIgnored Outcome = "ignored"
)

// Handlers receives the two event kinds reconciliation acts on.
type Handlers interface {
	OnCheckoutCompleted(ctx context.Context, evt CheckoutCompleted) error
	OnPaymentSucceeded(ctx context.Context, evt PaymentSucceeded) error
}

// Router dispatches each event to exactly one handler.
type Router struct {
	handlers Handlers
	logger   *zap.Logger
}

func NewRouter(h Handlers, logger *zap.Logger) *Router {
	return &Router{handlers: h, logger: logger}
}

// Route returns OutcomeIgnored for event types nobody handles. A handler
// error or panic comes back as apperrors.ErrProcessing wrapping the cause,
// which the boundary turns into a 500 so Stripe redelivers.
func (r *Router) Route(ctx context.Context, evt Event) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("webhook handler panicked",
				zap.String("event_id", evt.ID()),
				zap.String("event_type", evt.Type()),
				zap.Any("panic", p),
				zap.Stack("stack"))
			outcome = ""
			err = fmt.Errorf("%w: %s handler panicked: %v", apperrors.ErrProcessing, evt.Type(), p)
		}
	}()

	switch e := evt.(type) {
	case CheckoutCompleted:
		err = r.handlers.OnCheckoutCompleted(ctx, e)
	case PaymentSucceeded:
		err = r.handlers.OnPaymentSucceeded(ctx, e)
	case Ignored:
		r.logger.Debug("Unhandled webhook event type",
			zap.String("event_id", e.EventID),
			zap.String("event_type", e.EventType))
		return OutcomeIgnored, nil
	default:
		return "", fmt.Errorf("%w: unexpected event variant %T", apperrors.ErrProcessing, evt)
	}

	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", apperrors.ErrProcessing, evt.Type(), err)
	}
	return OutcomeHandled, nil
}

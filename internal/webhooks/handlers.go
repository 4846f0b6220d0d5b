package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/aws"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/backlog"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/checkout"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/gifts"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/logger"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/metrics"
)

// Ledger is the part of gifts.Ledger reconciliation writes through.
type Ledger interface {
	CreatePending(ctx context.Context, in gifts.PendingGift) (*gifts.Record, bool, error)
	MarkSucceeded(ctx context.Context, paymentIntentID string) (*gifts.Record, bool, error)
}

// Backlog defers confirmations and parks unusable events.
type Backlog interface {
	DeferConfirmation(ctx context.Context, paymentIntentID, eventID string, attempt int) error
	DeadLetter(ctx context.Context, reason, eventID, paymentIntentID string, payload json.RawMessage) error
}

// Reconciler applies checkout and payment events to the gift ledger.
type Reconciler struct {
	ledger          Ledger
	backlog         Backlog
	metrics         metrics.Recorder
	logger          *zap.Logger
	defaultCurrency string
}

// NewReconciler wires the handlers. defaultCurrency is recorded when a
// session arrives without one.
func NewReconciler(ledger Ledger, bl Backlog, rec metrics.Recorder, logger *zap.Logger, defaultCurrency string) *Reconciler {
	return &Reconciler{
		ledger:          ledger,
		backlog:         bl,
		metrics:         rec,
		logger:          logger,
		defaultCurrency: defaultCurrency,
	}
}

// OnCheckoutCompleted records a pending gift from the session metadata.
// Unusable metadata is acknowledged: the payment cannot be attributed, so
// the session is logged, counted and dead-lettered instead of retried.
func (r *Reconciler) OnCheckoutCompleted(ctx context.Context, evt CheckoutCompleted) error {
	log := logger.FromContext(ctx, r.logger).With(zap.String("session_id", evt.SessionID))

	currency := evt.Currency
	if currency == "" {
		currency = r.defaultCurrency
	}
	md := evt.Metadata
	rec, created, err := r.ledger.CreatePending(ctx, gifts.PendingGift{
		SessionID:       evt.SessionID,
		PaymentIntentID: evt.PaymentIntentID,
		ChildID:         md[checkout.MetaChildID],
		Slug:            md[checkout.MetaSlug],
		GifterName:      md[checkout.MetaGifterName],
		GifterEmail:     md[checkout.MetaGifterEmail],
		Message:         md[checkout.MetaMessage],
		Amount:          evt.AmountTotal,
		Currency:        currency,
	})
	if errors.Is(err, apperrors.ErrInvalidMetadata) {
		log.Error("checkout session has unusable metadata, gift not recorded",
			zap.String("payment_intent_id", evt.PaymentIntentID),
			zap.Int64("amount_total", evt.AmountTotal),
			zap.Error(err))
		r.metrics.EventDropped(ctx, metrics.ReasonMissingMetadata)
		r.deadLetter(ctx, log, backlog.ReasonMissingMetadata, evt.EventID, evt.PaymentIntentID, evt.Raw)
		return nil
	}
	if err != nil {
		return err
	}

	if !created {
		log.Info("checkout session already recorded", zap.String("gift_id", rec.GiftID), zap.String("status", rec.Status))
		return nil
	}
	r.metrics.GiftTransition(ctx, gifts.StatusPending)
	log.Info("gift recorded",
		zap.String("gift_id", rec.GiftID),
		zap.String("child_id", rec.ChildID),
		zap.String("payment_intent_id", rec.PaymentIntentID),
		zap.Int64("amount", rec.Amount))
	return nil
}

// OnPaymentSucceeded promotes the matching gift. When the gift does not
// exist yet the confirmation is deferred to the retry queue; if that
// enqueue fails the error is returned so Stripe redelivers instead.
func (r *Reconciler) OnPaymentSucceeded(ctx context.Context, evt PaymentSucceeded) error {
	log := logger.FromContext(ctx, r.logger).With(zap.String("payment_intent_id", evt.PaymentIntentID))

	rec, changed, err := r.ledger.MarkSucceeded(ctx, evt.PaymentIntentID)
	switch {
	case err == nil && changed:
		r.metrics.GiftTransition(ctx, gifts.StatusSucceeded)
		log.Info("gift succeeded", zap.String("gift_id", rec.GiftID), zap.String("session_id", rec.SessionID))
		return nil

	case err == nil:
		log.Info("gift already succeeded", zap.String("gift_id", rec.GiftID), zap.String("session_id", rec.SessionID))
		return nil

	case errors.Is(err, apperrors.ErrNotFound):
		derr := r.backlog.DeferConfirmation(ctx, evt.PaymentIntentID, evt.EventID, 1)
		switch {
		case derr == nil:
			r.metrics.Confirmation(ctx, metrics.OutcomeDeferred)
			log.Warn("no gift for payment intent yet, confirmation deferred")
			return nil
		case errors.Is(derr, aws.ErrNoQueue):
			r.metrics.EventDropped(ctx, metrics.ReasonUnmatchedIntent)
			log.Warn("no gift for payment intent and no retry queue configured, confirmation dropped")
			return nil
		default:
			return fmt.Errorf("%w: %w", apperrors.ErrUpstream, derr)
		}

	case errors.Is(err, apperrors.ErrInvalidMetadata):
		r.metrics.EventDropped(ctx, metrics.ReasonMissingMetadata)
		log.Error("payment intent event without an id", zap.Error(err))
		return nil

	default:
		return err
	}
}

// RetryConfirmation runs one deferred confirmation taken off the retry
// queue. A still-missing gift is deferred again until the attempt budget is
// spent, then dead-lettered. Returning an error leaves the message on the
// queue for redelivery.
func (r *Reconciler) RetryConfirmation(ctx context.Context, msg backlog.Message) error {
	log := logger.FromContext(ctx, r.logger).With(
		zap.String("event_id", msg.EventID),
		zap.String("payment_intent_id", msg.PaymentIntentID),
		zap.Int("attempt", msg.Attempt))

	rec, changed, err := r.ledger.MarkSucceeded(ctx, msg.PaymentIntentID)
	switch {
	case err == nil:
		r.metrics.Confirmation(ctx, metrics.OutcomeRetried)
		if changed {
			r.metrics.GiftTransition(ctx, gifts.StatusSucceeded)
		}
		log.Info("deferred confirmation applied", zap.String("gift_id", rec.GiftID), zap.Bool("changed", changed))
		return nil

	case errors.Is(err, apperrors.ErrNotFound):
		derr := r.backlog.DeferConfirmation(ctx, msg.PaymentIntentID, msg.EventID, msg.Attempt+1)
		switch {
		case derr == nil:
			r.metrics.Confirmation(ctx, metrics.OutcomeDeferred)
			log.Warn("gift still missing, confirmation deferred again")
			return nil
		case errors.Is(derr, backlog.ErrExhausted), errors.Is(derr, aws.ErrNoQueue):
			r.metrics.Confirmation(ctx, metrics.OutcomeGaveUp)
			log.Error("gift never appeared for payment intent, giving up")
			payload, _ := json.Marshal(msg)
			r.deadLetter(ctx, log, backlog.ReasonUnmatchedIntent, msg.EventID, msg.PaymentIntentID, payload)
			return nil
		default:
			return fmt.Errorf("%w: %w", apperrors.ErrUpstream, derr)
		}

	case errors.Is(err, apperrors.ErrInvalidMetadata):
		log.Error("deferred confirmation without payment intent id", zap.Error(err))
		return nil

	default:
		return err
	}
}

// deadLetter is best effort: the event has already been logged loudly.
func (r *Reconciler) deadLetter(ctx context.Context, log *zap.Logger, reason, eventID, paymentIntentID string, payload json.RawMessage) {
	err := r.backlog.DeadLetter(ctx, reason, eventID, paymentIntentID, payload)
	switch {
	case err == nil:
	case errors.Is(err, aws.ErrNoQueue):
		log.Warn("no dead-letter queue configured", zap.String("reason", reason))
	default:
		log.Error("dead-letter publish failed", zap.String("reason", reason), zap.Error(err))
	}
}

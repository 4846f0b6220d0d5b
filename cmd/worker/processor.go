package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/backlog"
)

// Confirmer retries a deferred payment confirmation.
// *webhooks.Reconciler implements it.
type Confirmer interface {
	RetryConfirmation(ctx context.Context, msg backlog.Message) error
}

// Processor handles backlog messages delivered by SQS.
type Processor struct {
	confirmer Confirmer
	logger    *zap.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(c Confirmer, logger *zap.Logger) *Processor {
	return &Processor{confirmer: c, logger: logger}
}

// Handle processes each message of the batch and reports the retryable
// failures so SQS redelivers only those.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		err := p.processMessage(ctx, rec)
		if err == nil {
			continue
		}
		if !apperrors.Retryable(err) {
			p.logger.Error("dropping message after permanent failure", zap.String("message_id", rec.MessageId), zap.Error(err))
			continue
		}
		p.logger.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	msg, err := backlog.Decode(rec.Body)
	if err != nil {
		// a body we cannot decode will never succeed; drop it
		p.logger.Error("discarding undecodable message", zap.String("message_id", rec.MessageId), zap.Error(err))
		return nil
	}

	log := p.logger.With(
		zap.String("kind", msg.Kind),
		zap.String("event_id", msg.EventID),
		zap.String("payment_intent_id", msg.PaymentIntentID),
		zap.Int("attempt", msg.Attempt))

	switch msg.Kind {
	case backlog.KindConfirmPayment:
		log.Info("retrying deferred confirmation")
		if err := p.confirmer.RetryConfirmation(ctx, msg); err != nil {
			return fmt.Errorf("retry confirmation %s: %w", msg.PaymentIntentID, err)
		}
		return nil
	case backlog.KindDeadLetter:
		// dead letters are parked for an operator; the worker only reports them
		log.Warn("dead-lettered event", zap.String("reason", msg.Reason), zap.ByteString("payload", msg.Payload))
		return nil
	default:
		log.Error("unknown message kind")
		return nil
	}
}

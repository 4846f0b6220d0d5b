package webhooks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/logger"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/metrics"
)

// EventLog remembers processed Stripe event ids. *idempotency.Store
// implements it.
type EventLog interface {
	Lookup(ctx context.Context, eventID string) (*idempotency.EventRecord, error)
	Begin(ctx context.Context, eventID, eventType string) (bool, error)
	MarkDone(ctx context.Context, eventID, outcome string) error
	MarkFailed(ctx context.Context, eventID, note string) error
}

// Result contains the result of processing a webhook.
type Result struct {
	EventID   string  `json:"event_id"`
	EventType string  `json:"event_type"`
	Outcome   Outcome `json:"outcome,omitempty"`
	Duplicate bool    `json:"duplicate,omitempty"`
}

// Service verifies, deduplicates and routes webhook deliveries.
type Service struct {
	verifier *Verifier
	router   *Router
	events   EventLog
	metrics  metrics.Recorder
	logger   *zap.Logger
}

// NewService wires a Service. events may be nil, in which case every
// delivery is routed and per-record idempotency in the ledger is the only
// duplicate protection.
func NewService(v *Verifier, r *Router, events EventLog, rec metrics.Recorder, logger *zap.Logger) *Service {
	return &Service{
		verifier: v,
		router:   r,
		events:   events,
		metrics:  rec,
		logger:   logger,
	}
}

// Process handles one delivery. Verification errors match
// apperrors.ErrVerification and nothing has been touched; routing errors
// match apperrors.ErrProcessing and are safe to redeliver.
func (s *Service) Process(ctx context.Context, payload []byte, signature string) (*Result, error) {
	log := logger.FromContext(ctx, s.logger)
	start := time.Now()

	evt, err := s.verifier.Verify(payload, signature)
	if err != nil {
		log.Warn("Failed to verify webhook signature", zap.Error(err))
		s.metrics.WebhookEvent(ctx, "unverified", metrics.OutcomeRejected)
		return nil, err
	}

	res := &Result{EventID: evt.ID(), EventType: evt.Type()}
	log = log.With(zap.String("event_id", res.EventID), zap.String("event_type", res.EventType))
	log.Info("Processing Stripe webhook event")

	if s.events != nil {
		prev, err := s.events.Lookup(ctx, res.EventID)
		if err != nil {
			log.Warn("event log lookup failed, processing anyway", zap.Error(err))
		} else if prev != nil && prev.Status == idempotency.StatusDone {
			res.Outcome = Outcome(prev.Outcome)
			res.Duplicate = true
			s.metrics.WebhookEvent(ctx, res.EventType, metrics.OutcomeDuplicate)
			log.Info("event already processed", zap.String("outcome", prev.Outcome))
			return res, nil
		}
		if _, err := s.events.Begin(ctx, res.EventID, res.EventType); err != nil {
			log.Warn("event log begin failed", zap.Error(err))
		}
	}

	outcome, err := s.router.Route(logger.WithContext(ctx, log), evt)
	if err != nil {
		log.Error("Failed to process webhook event", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		s.metrics.WebhookEvent(ctx, res.EventType, metrics.OutcomeFailed)
		if s.events != nil {
			if ferr := s.events.MarkFailed(ctx, res.EventID, err.Error()); ferr != nil {
				log.Warn("event log mark failed failed", zap.Error(ferr))
			}
		}
		return res, err
	}

	res.Outcome = outcome
	s.metrics.WebhookEvent(ctx, res.EventType, string(outcome))
	if s.events != nil {
		if derr := s.events.MarkDone(ctx, res.EventID, string(outcome)); derr != nil {
			log.Warn("event log mark done failed", zap.Error(derr))
		}
	}
	log.Info("webhook event processed", zap.String("outcome", string(outcome)), zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// Package backlog carries work the webhook path could not finish inline:
// payment confirmations that arrived before their gift existed, and events
// that can never be applied. Both travel over SQS.
package backlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/aws"
)

// Message kinds.
const (
	KindConfirmPayment = "confirm_payment"
	KindDeadLetter     = "dead_letter"
)

// Dead-letter reasons.
const (
	ReasonMissingMetadata = "missing_metadata"
	ReasonUnmatchedIntent = "unmatched_payment_intent"
)

// ErrExhausted is returned by DeferConfirmation once the attempt budget is spent.
var ErrExhausted = errors.New("backlog: retry attempts exhausted")

// Message is the JSON body of every backlog SQS message.
type Message struct {
	Kind            string          `json:"kind"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	EventID         string          `json:"event_id,omitempty"`
	Attempt         int             `json:"attempt,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt      time.Time       `json:"enqueued_at"`
}

// Sender publishes one message. *aws.Publisher implements it.
type Sender interface {
	Enabled() bool
	Send(ctx context.Context, body string, attributes map[string]string, delay time.Duration) (string, error)
}

// Config bounds the deferral loop.
type Config struct {
	RetryDelay  time.Duration
	MaxAttempts int
}

// Queue writes to the retry and dead-letter queues. Either may be disabled.
type Queue struct {
	retry      Sender
	deadLetter Sender
	cfg        Config
	logger     *zap.Logger
	nowFunc    func() time.Time
}

// New returns a Queue. Pass nil senders to disable a path.
func New(retry, deadLetter Sender, cfg Config, logger *zap.Logger) *Queue {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Queue{
		retry:      retry,
		deadLetter: deadLetter,
		cfg:        cfg,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// MaxAttempts is the number of deferred confirmation attempts allowed.
func (q *Queue) MaxAttempts() int { return q.cfg.MaxAttempts }

func enabled(s Sender) bool { return s != nil && s.Enabled() }

// DeferConfirmation schedules attempt number `attempt` of confirming a
// payment intent. The delay grows linearly with the attempt number.
// Returns aws.ErrNoQueue when no retry queue is configured and ErrExhausted
// when attempt exceeds MaxAttempts.
func (q *Queue) DeferConfirmation(ctx context.Context, paymentIntentID, eventID string, attempt int) error {
	if !enabled(q.retry) {
		return aws.ErrNoQueue
	}
	if attempt > q.cfg.MaxAttempts {
		return ErrExhausted
	}
	msg := Message{
		Kind:            KindConfirmPayment,
		PaymentIntentID: paymentIntentID,
		EventID:         eventID,
		Attempt:         attempt,
		EnqueuedAt:      q.nowFunc().UTC(),
	}
	delay := q.cfg.RetryDelay * time.Duration(attempt)
	id, err := q.send(ctx, q.retry, msg, delay)
	if err != nil {
		return fmt.Errorf("defer confirmation %s: %w", paymentIntentID, err)
	}
	q.logger.Info("payment confirmation deferred",
		zap.String("payment_intent_id", paymentIntentID),
		zap.String("event_id", eventID),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
		zap.String("message_id", id))
	return nil
}

// DeadLetter parks an event that cannot be applied, with the raw object for
// manual repair. Returns aws.ErrNoQueue when no dead-letter queue is configured.
func (q *Queue) DeadLetter(ctx context.Context, reason, eventID, paymentIntentID string, payload json.RawMessage) error {
	if !enabled(q.deadLetter) {
		return aws.ErrNoQueue
	}
	msg := Message{
		Kind:            KindDeadLetter,
		PaymentIntentID: paymentIntentID,
		EventID:         eventID,
		Reason:          reason,
		Payload:         payload,
		EnqueuedAt:      q.nowFunc().UTC(),
	}
	id, err := q.send(ctx, q.deadLetter, msg, 0)
	if err != nil {
		return fmt.Errorf("dead-letter event %s: %w", eventID, err)
	}
	q.logger.Warn("event dead-lettered",
		zap.String("reason", reason),
		zap.String("event_id", eventID),
		zap.String("message_id", id))
	return nil
}

func (q *Queue) send(ctx context.Context, s Sender, msg Message, delay time.Duration) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return s.Send(ctx, string(body), map[string]string{
		"kind":     msg.Kind,
		"event_id": msg.EventID,
		"attempt":  strconv.Itoa(msg.Attempt),
	}, delay)
}

// Decode parses a backlog message body.
func Decode(body string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return Message{}, fmt.Errorf("invalid message body: %w", err)
	}
	if msg.Kind == "" {
		return Message{}, fmt.Errorf("invalid message body: missing kind")
	}
	return msg, nil
}

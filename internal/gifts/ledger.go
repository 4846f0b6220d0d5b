// Package gifts owns the gift record and its pending -> succeeded state
// machine. Every mutation is a single-record conditional write, so
// concurrent duplicate deliveries need no locking.
package gifts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/docstore"
)

const (
	paymentIntentIndex = "stripe_payment_intent_id-index"
	childStatusIndex   = "child_status-index"
)

// CollectionFor describes the gifts table and its two secondary indexes.
func CollectionFor(table string) docstore.Collection {
	return docstore.Collection{
		Table:   table,
		KeyAttr: "stripe_session_id",
		Indexes: map[string]docstore.Index{
			"stripe_payment_intent_id": {Name: paymentIntentIndex},
			"child_status":             {Name: childStatusIndex, SortKey: "created_at"},
		},
	}
}

// Ledger is the only writer of the gifts collection.
type Ledger struct {
	store   docstore.Store
	log     *zap.Logger
	newID   func() string
	nowFunc func() time.Time
}

// NewLedger creates a Ledger over store.
func NewLedger(store docstore.Store, log *zap.Logger) *Ledger {
	return &Ledger{
		store:   store,
		log:     log,
		newID:   uuid.NewString,
		nowFunc: time.Now,
	}
}

func (l *Ledger) now() time.Time {
	return l.nowFunc().UTC().Truncate(time.Second)
}

// CreatePending records a gift for a completed checkout session. It is
// idempotent by session id: when a record already exists it is returned with
// created=false and nothing is written.
func (l *Ledger) CreatePending(ctx context.Context, in PendingGift) (*Record, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	now := l.now()
	rec := Record{
		SessionID:       in.SessionID,
		GiftID:          l.newID(),
		PaymentIntentID: in.PaymentIntentID,
		ChildID:         in.ChildID,
		Slug:            in.Slug,
		GifterName:      in.GifterName,
		GifterEmail:     in.GifterEmail,
		Message:         in.Message,
		Amount:          in.Amount,
		Currency:        in.Currency,
		Status:          StatusPending,
		ChildStatus:     childStatus(in.ChildID, StatusPending),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := l.store.Put(ctx, Collection, in.SessionID, rec)
	switch {
	case err == nil:
		return &rec, true, nil
	case errors.Is(err, docstore.ErrAlreadyExists):
		existing, err := l.get(ctx, in.SessionID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("%w: create gift %s: %v", apperrors.ErrUpstream, in.SessionID, err)
	}
}

func (in PendingGift) validate() error {
	var missing []string
	if in.SessionID == "" {
		missing = append(missing, "session id")
	}
	if in.ChildID == "" {
		missing = append(missing, "childId")
	}
	if in.GifterName == "" {
		missing = append(missing, "gifterName")
	}
	if in.GifterEmail == "" {
		missing = append(missing, "gifterEmail")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %v", apperrors.ErrInvalidMetadata, missing)
	}
	if in.Amount < 0 {
		return fmt.Errorf("%w: negative amount %d", apperrors.ErrInvalidMetadata, in.Amount)
	}
	return nil
}

// MarkSucceeded promotes the gift paid by paymentIntentID to succeeded.
// changed is true only for the call that performed the transition; a gift
// that already succeeded, or that a concurrent caller promoted, is returned
// with changed=false. apperrors.ErrNotFound means no gift references the
// payment intent yet.
func (l *Ledger) MarkSucceeded(ctx context.Context, paymentIntentID string) (*Record, bool, error) {
	if paymentIntentID == "" {
		return nil, false, fmt.Errorf("%w: empty payment intent id", apperrors.ErrInvalidMetadata)
	}

	var matches []Record
	err := l.store.QueryByEquals(ctx, Collection, docstore.Query{
		Field: "stripe_payment_intent_id",
		Value: paymentIntentID,
		Limit: 2,
	}, &matches)
	if err != nil {
		return nil, false, fmt.Errorf("%w: find gift by payment intent %s: %v", apperrors.ErrUpstream, paymentIntentID, err)
	}
	if len(matches) == 0 {
		return nil, false, fmt.Errorf("%w: no gift for payment intent %s", apperrors.ErrNotFound, paymentIntentID)
	}
	if len(matches) > 1 {
		l.log.Error("payment intent matches more than one gift",
			zap.String("payment_intent_id", paymentIntentID),
			zap.String("using_session_id", matches[0].SessionID),
			zap.String("other_session_id", matches[1].SessionID),
		)
	}

	rec := matches[0]
	if rec.Status == StatusSucceeded {
		return &rec, false, nil
	}

	now := l.now()
	err = l.store.UpdateIfExists(ctx, Collection, rec.SessionID, map[string]any{
		"status":       StatusSucceeded,
		"child_status": childStatus(rec.ChildID, StatusSucceeded),
		"updated_at":   now,
	}, docstore.Condition{Field: "status", Equals: StatusPending})
	switch {
	case err == nil:
		rec.Status = StatusSucceeded
		rec.ChildStatus = childStatus(rec.ChildID, StatusSucceeded)
		rec.UpdatedAt = now
		return &rec, true, nil
	case errors.Is(err, docstore.ErrConditionFailed):
		// lost the race to another delivery; report what it wrote
		winner, err := l.get(ctx, rec.SessionID)
		return winner, false, err
	case errors.Is(err, docstore.ErrNotFound):
		return nil, false, fmt.Errorf("%w: gift %s vanished", apperrors.ErrNotFound, rec.SessionID)
	default:
		return nil, false, fmt.Errorf("%w: mark gift %s succeeded: %v", apperrors.ErrUpstream, rec.SessionID, err)
	}
}

// Get returns the gift created for a checkout session.
func (l *Ledger) Get(ctx context.Context, sessionID string) (*Record, error) {
	return l.get(ctx, sessionID)
}

func (l *Ledger) get(ctx context.Context, sessionID string) (*Record, error) {
	var rec Record
	err := l.store.Get(ctx, Collection, sessionID, &rec)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: gift %s", apperrors.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get gift %s: %v", apperrors.ErrUpstream, sessionID, err)
	}
	return &rec, nil
}

// RecentSucceeded lists up to limit succeeded gifts for a child, newest first.
func (l *Ledger) RecentSucceeded(ctx context.Context, childID string, limit int) ([]Record, error) {
	var recs []Record
	err := l.store.QueryByEquals(ctx, Collection, docstore.Query{
		Field:     "child_status",
		Value:     childStatus(childID, StatusSucceeded),
		OrderBy:   "created_at",
		Direction: docstore.Descending,
		Limit:     limit,
	}, &recs)
	if err != nil {
		return nil, fmt.Errorf("%w: recent gifts for %s: %v", apperrors.ErrUpstream, childID, err)
	}
	return recs, nil
}

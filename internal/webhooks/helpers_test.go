package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/aws"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/backlog"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/docstore"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/gifts"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/idempotency"
)

const testSecret = "whsec_test_secret"

// signedEvent builds a Stripe event envelope around object and signs it.
func signedEvent(t *testing.T, id, eventType string, object any) ([]byte, string) {
	t.Helper()
	obj, err := json.Marshal(object)
	require.NoError(t, err)
	payload := []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2020-08-27","type":%q,"data":{"object":%s}}`, id, eventType, obj))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return payload, signed.Header
}

func sessionObject(sessionID, paymentIntentID string, amount int64, metadata map[string]string) map[string]any {
	return map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"amount_total":   amount,
		"currency":       "cad",
		"payment_intent": paymentIntentID,
		"metadata":       metadata,
	}
}

func intentObject(paymentIntentID string) map[string]any {
	return map[string]any{"id": paymentIntentID, "object": "payment_intent", "amount": 1000}
}

func bobMetadata() map[string]string {
	return map[string]string{
		"childId":     "child-abc-id",
		"slug":        "child-abc",
		"gifterName":  "Bob",
		"gifterEmail": "bob@example.com",
		"message":     "Happy savings!",
	}
}

func newLedger() (*gifts.Ledger, *docstore.MemoryStore) {
	store := docstore.NewMemoryStore(map[string]docstore.Collection{
		gifts.Collection: gifts.CollectionFor("gifts"),
	})
	return gifts.NewLedger(store, zap.NewNop()), store
}

type deferred struct {
	PaymentIntentID string
	EventID         string
	Attempt         int
}

type deadLettered struct {
	Reason  string
	EventID string
	Payload json.RawMessage
}

// fakeBacklog mimics backlog.Queue limits without SQS.
type fakeBacklog struct {
	mu           sync.Mutex
	maxAttempts  int
	noRetry      bool
	noDeadLetter bool
	deferErr     error
	deferred     []deferred
	deadLettered []deadLettered
}

func (f *fakeBacklog) DeferConfirmation(ctx context.Context, paymentIntentID, eventID string, attempt int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noRetry {
		return aws.ErrNoQueue
	}
	if f.deferErr != nil {
		return f.deferErr
	}
	if f.maxAttempts > 0 && attempt > f.maxAttempts {
		return backlog.ErrExhausted
	}
	f.deferred = append(f.deferred, deferred{paymentIntentID, eventID, attempt})
	return nil
}

func (f *fakeBacklog) DeadLetter(ctx context.Context, reason, eventID, paymentIntentID string, payload json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noDeadLetter {
		return aws.ErrNoQueue
	}
	f.deadLettered = append(f.deadLettered, deadLettered{reason, eventID, payload})
	return nil
}

// memoryEventLog is an in-process EventLog.
type memoryEventLog struct {
	mu      sync.Mutex
	records map[string]*idempotency.EventRecord
	failAll bool
}

func newMemoryEventLog() *memoryEventLog {
	return &memoryEventLog{records: map[string]*idempotency.EventRecord{}}
}

var errEventLogDown = errors.New("event log unavailable")

func (m *memoryEventLog) Lookup(ctx context.Context, eventID string) (*idempotency.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, errEventLogDown
	}
	rec, ok := m.records[eventID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryEventLog) Begin(ctx context.Context, eventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return false, errEventLogDown
	}
	if rec, ok := m.records[eventID]; ok {
		rec.Attempts++
		return false, nil
	}
	m.records[eventID] = &idempotency.EventRecord{EventID: eventID, EventType: eventType, Status: idempotency.StatusInProgress, Attempts: 1}
	return true, nil
}

func (m *memoryEventLog) MarkDone(ctx context.Context, eventID, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errEventLogDown
	}
	rec, ok := m.records[eventID]
	if !ok {
		return errors.New("unknown event")
	}
	rec.Status = idempotency.StatusDone
	rec.Outcome = outcome
	return nil
}

func (m *memoryEventLog) MarkFailed(ctx context.Context, eventID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errEventLogDown
	}
	if rec, ok := m.records[eventID]; ok && rec.Status != idempotency.StatusDone {
		rec.Status = idempotency.StatusFailed
		rec.Note = note
	}
	return nil
}

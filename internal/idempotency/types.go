package idempotency

import "time"

// Status values for processed-event entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// EventRecord is the shape persisted in the stripe_events DynamoDB table.
type EventRecord struct {
	EventID   string    `dynamodbav:"event_id"` // PK, Stripe evt_ id
	EventType string    `dynamodbav:"event_type"`
	Status    string    `dynamodbav:"status"`
	Outcome   string    `dynamodbav:"outcome,omitempty"` // handled | ignored
	Note      string    `dynamodbav:"note,omitempty"`    // last failure, truncated
	Attempts  int       `dynamodbav:"attempts"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
	ExpiresAt int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

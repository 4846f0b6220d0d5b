package gifts

import "time"

// Gift statuses. The only transition is StatusPending -> StatusSucceeded.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
)

// Collection is the document-store collection holding gift records.
const Collection = "gifts"

// Record is a gift as stored in the gifts table (PK stripe_session_id).
type Record struct {
	SessionID       string    `dynamodbav:"stripe_session_id"` // PK
	GiftID          string    `dynamodbav:"gift_id"`
	PaymentIntentID string    `dynamodbav:"stripe_payment_intent_id,omitempty"` // GSI
	ChildID         string    `dynamodbav:"child_id"`
	Slug            string    `dynamodbav:"slug"`
	GifterName      string    `dynamodbav:"gifter_name"`
	GifterEmail     string    `dynamodbav:"gifter_email"`
	Message         string    `dynamodbav:"message"`
	Amount          int64     `dynamodbav:"amount"` // minor units, set once from amount_total
	Currency        string    `dynamodbav:"currency"`
	Status          string    `dynamodbav:"status"`       // pending | succeeded
	ChildStatus     string    `dynamodbav:"child_status"` // GSI: <child_id>#<status>
	CreatedAt       time.Time `dynamodbav:"created_at"`
	UpdatedAt       time.Time `dynamodbav:"updated_at"`
}

// PendingGift carries what a completed checkout session tells us about a gift.
type PendingGift struct {
	SessionID       string
	PaymentIntentID string
	ChildID         string
	Slug            string
	GifterName      string
	GifterEmail     string
	Message         string
	Amount          int64
	Currency        string
}

func childStatus(childID, status string) string {
	return childID + "#" + status
}

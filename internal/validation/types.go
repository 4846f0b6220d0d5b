package validation

// CreateCheckoutRequest is the payload for POST /payments/checkout.
type CreateCheckoutRequest struct {
	Slug        string `json:"slug" validate:"required"`              // public gift page slug
	Amount      int64  `json:"amount" validate:"required"`            // minor units; floor checked at struct level
	GifterName  string `json:"gifterName" validate:"required"`        // shown on the gift page
	GifterEmail string `json:"gifterEmail" validate:"required,email"` // receipt address
	Message     string `json:"message,omitempty" validate:"max=500"`  // Stripe caps metadata values at 500 chars
}

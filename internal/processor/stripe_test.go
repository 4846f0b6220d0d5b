package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"test key in test mode", Config{SecretKey: "sk_test_123", WebhookSecret: "whsec_1", IsTestMode: true}, false},
		{"live key in live mode", Config{SecretKey: "sk_live_123", WebhookSecret: "whsec_1"}, false},
		{"live key in test mode", Config{SecretKey: "sk_live_123", WebhookSecret: "whsec_1", IsTestMode: true}, true},
		{"test key in live mode", Config{SecretKey: "sk_test_123", WebhookSecret: "whsec_1"}, true},
		{"missing key", Config{WebhookSecret: "whsec_1", IsTestMode: true}, true},
		{"missing webhook secret", Config{SecretKey: "sk_test_123", IsTestMode: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func stubBackend(t *testing.T, h http.HandlerFunc) stripe.Backend {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
	})
}

func TestCreateCheckoutSession(t *testing.T) {
	var form url.Values
	backend := stubBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	})

	s, err := NewStripe(Config{SecretKey: "sk_test_123", WebhookSecret: "whsec_1", IsTestMode: true}, zap.NewNop(), WithBackend(backend))
	require.NoError(t, err)

	sess, err := s.CreateCheckoutSession(context.Background(), SessionInput{
		Currency:    "cad",
		ProductName: "RESP Gift for Abby",
		Description: "Happy savings!",
		UnitAmount:  1000,
		SuccessURL:  "http://localhost:3000/thanks?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   "http://localhost:3000/for/child-abc",
		Metadata:    map[string]string{"childId": "child-abc-id", "message": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)

	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "card", form.Get("payment_method_types[0]"))
	assert.Equal(t, "cad", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "1000", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "RESP Gift for Abby", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "1", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "child-abc-id", form.Get("metadata[childId]"))
	assert.Equal(t, "http://localhost:3000/for/child-abc", form.Get("cancel_url"))
}

func TestCreateCheckoutSession_APIError(t *testing.T) {
	backend := stubBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"parameter_invalid_integer","message":"Invalid integer"}}`))
	})
	s, err := NewStripe(Config{SecretKey: "sk_test_123", WebhookSecret: "whsec_1", IsTestMode: true}, zap.NewNop(), WithBackend(backend))
	require.NoError(t, err)

	_, err = s.CreateCheckoutSession(context.Background(), SessionInput{Currency: "cad", UnitAmount: 1000})
	require.Error(t, err)
	var serr *stripe.Error
	assert.True(t, errors.As(err, &serr))
}

func TestVerifySignedEvent(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	evt, err := VerifySignedEvent(payload, signed.Header, "whsec_test")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, stripe.EventTypePaymentIntentSucceeded, evt.Type)

	_, err = VerifySignedEvent(payload, "bad-signature", "whsec_test")
	assert.Error(t, err)

	_, err = VerifySignedEvent(payload, signed.Header, "whsec_other")
	assert.Error(t, err)

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-3] = ' '
	_, err = VerifySignedEvent(tampered, signed.Header, "whsec_test")
	assert.Error(t, err)
}

package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/webhooks"
)

// MaxWebhookBody bounds the raw event body read from Stripe.
const MaxWebhookBody = 64 << 10

// WebhookProcessor is implemented by *webhooks.Service.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (*webhooks.Result, error)
}

func registerWebhookRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.POST("/webhooks/stripe", func(c *gin.Context) {
		// the signature covers the exact bytes, so the body is read raw
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Webhook Error: payload too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook Error: unreadable body"})
			return
		}

		res, err := cfg.Webhooks.Process(c.Request.Context(), body, c.GetHeader("Stripe-Signature"))
		if err != nil {
			if status := apperrors.HTTPStatus(err); status < http.StatusInternalServerError {
				c.JSON(status, gin.H{"error": "Webhook Error: " + err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
			return
		}

		resp := gin.H{"received": true}
		if res.Duplicate {
			resp["duplicate"] = true
		}
		c.JSON(http.StatusOK, resp)
	})
}

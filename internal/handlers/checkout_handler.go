package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/checkout"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/logger"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/metrics"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/validation"
)

// SessionIssuer is implemented by *checkout.Issuer.
type SessionIssuer interface {
	CreateSession(ctx context.Context, req validation.CreateCheckoutRequest) (*checkout.Session, error)
}

func registerCheckoutRoutes(r *gin.Engine, cfg HandlerConfig) {
	mw := cors("POST, OPTIONS", "Content-Type, Authorization")
	r.OPTIONS("/payments/checkout", mw)
	r.POST("/payments/checkout", mw, func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx, cfg.Logger)

		var req validation.CreateCheckoutRequest
		if err := validation.BindJSON(c, &req); err != nil {
			// BindJSON already wrote a 400
			cfg.Metrics.CheckoutSession(ctx, metrics.OutcomeInvalid)
			return
		}

		sess, err := cfg.Issuer.CreateSession(ctx, req)
		if err != nil {
			if validation.WriteError(c, err) {
				cfg.Metrics.CheckoutSession(ctx, metrics.OutcomeInvalid)
				return
			}
			switch status := apperrors.HTTPStatus(err); status {
			case http.StatusNotFound:
				cfg.Metrics.CheckoutSession(ctx, metrics.OutcomeNotFound)
				c.JSON(status, gin.H{"error": "Gift page not found"})
			case http.StatusBadRequest:
				cfg.Metrics.CheckoutSession(ctx, metrics.OutcomeInvalid)
				c.JSON(status, gin.H{"error": err.Error()})
			default:
				log.Error("Payment checkout error", zap.String("slug", req.Slug), zap.Error(err))
				cfg.Metrics.CheckoutSession(ctx, metrics.OutcomeError)
				c.JSON(status, gin.H{"error": "Internal server error"})
			}
			return
		}

		cfg.Metrics.CheckoutSession(ctx, metrics.OutcomeCreated)
		c.JSON(http.StatusOK, sess)
	})
}

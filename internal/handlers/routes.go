// Package handlers exposes checkout, webhook and public gift-page routes on a
// gin engine.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/metrics"
)

// HandlerConfig groups dependencies for the HTTP routes.
type HandlerConfig struct {
	Issuer    SessionIssuer
	Webhooks  WebhookProcessor
	Directory Directory
	Gifts     GiftReader
	Metrics   metrics.Recorder
	Logger    *zap.Logger
}

// RegisterRoutes registers every route on r. Requests with a method a path
// does not serve get 405.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	registerCheckoutRoutes(r, cfg)
	registerWebhookRoutes(r, cfg)
	registerPublicRoutes(r, cfg)
}

// cors answers preflight requests with 204 and decorates everything else.
func cors(methods, headers string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

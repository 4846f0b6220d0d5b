package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/gifts"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/logger"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/pages"
)

const recentGiftsLimit = 10

// Directory is implemented by *pages.Directory.
type Directory interface {
	Resolve(ctx context.Context, slug string) (*pages.Beneficiary, error)
}

// GiftReader is implemented by *gifts.Ledger.
type GiftReader interface {
	RecentSucceeded(ctx context.Context, childID string, limit int) ([]gifts.Record, error)
}

type publicChild struct {
	ID           string `json:"id"`
	FirstName    string `json:"firstName"`
	HeroPhotoURL string `json:"heroPhotoUrl,omitempty"`
}

type publicPage struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	GoalAmount  int64  `json:"goalAmount"`
	Theme       string `json:"theme"`
	IsPublic    bool   `json:"isPublic"`
}

type publicGift struct {
	ID         string    `json:"id"`
	GifterName string    `json:"gifterName"`
	Amount     int64     `json:"amount"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PublicChildResponse is the body of GET /public/child.
type PublicChildResponse struct {
	Child       publicChild  `json:"child"`
	GiftPage    publicPage   `json:"giftPage"`
	TotalRaised int64        `json:"totalRaised"`
	RecentGifts []publicGift `json:"recentGifts"`
	Slug        string       `json:"slug"`
}

func registerPublicRoutes(r *gin.Engine, cfg HandlerConfig) {
	mw := cors("GET, OPTIONS", "Content-Type")
	r.OPTIONS("/public/child", mw)
	r.GET("/public/child", mw, func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx, cfg.Logger)

		slug := c.Query("slug")
		if slug == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Slug parameter required"})
			return
		}

		b, err := cfg.Directory.Resolve(ctx, slug)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Gift page not found"})
				return
			}
			log.Error("Public child by slug error", zap.String("slug", slug), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if !b.Page.IsPublic {
			c.JSON(http.StatusNotFound, gin.H{"error": "Gift page not found"})
			return
		}

		recent, err := cfg.Gifts.RecentSucceeded(ctx, b.Child.ID, recentGiftsLimit)
		if err != nil {
			log.Error("Failed to list recent gifts", zap.String("child_id", b.Child.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		resp := PublicChildResponse{
			Child: publicChild{
				ID:           b.Child.ID,
				FirstName:    b.Child.FirstName,
				HeroPhotoURL: b.Child.HeroPhotoURL,
			},
			GiftPage: publicPage{
				Title:       b.Page.Title,
				Description: b.Page.Description,
				GoalAmount:  b.Page.GoalAmount,
				Theme:       b.Page.Theme,
				IsPublic:    b.Page.IsPublic,
			},
			RecentGifts: make([]publicGift, 0, len(recent)),
			Slug:        slug,
		}
		// totalRaised covers the listed gifts only
		for _, g := range recent {
			resp.TotalRaised += g.Amount
			resp.RecentGifts = append(resp.RecentGifts, publicGift{
				ID:         g.GiftID,
				GifterName: g.GifterName,
				Amount:     g.Amount,
				Message:    g.Message,
				CreatedAt:  g.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, resp)
	})
}

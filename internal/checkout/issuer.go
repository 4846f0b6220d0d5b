// Package checkout issues hosted checkout sessions for gifts. The session
// metadata it writes is the only thing the webhook side later learns about
// who a gift is from and for.
package checkout

import (
	"context"
	"errors"
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/pages"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/processor"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/validation"
)

// Metadata keys echoed back on checkout.session.completed.
const (
	MetaChildID     = "childId"
	MetaSlug        = "slug"
	MetaGifterName  = "gifterName"
	MetaGifterEmail = "gifterEmail"
	MetaMessage     = "message"
)

// Directory resolves slugs to beneficiaries.
type Directory interface {
	Resolve(ctx context.Context, slug string) (*pages.Beneficiary, error)
}

// Processor creates hosted checkout sessions.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, in processor.SessionInput) (*processor.Session, error)
}

// Config holds the issuance settings.
type Config struct {
	MinAmount int64
	Currency  string
	BaseURL   string
}

// Session is returned to the payer's browser.
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// Issuer validates gift requests and opens checkout sessions. It holds no
// local state.
type Issuer struct {
	cfg       Config
	directory Directory
	processor Processor
	validate  *validatorv10.Validate
	logger    *zap.Logger
}

// NewIssuer creates an Issuer.
func NewIssuer(cfg Config, directory Directory, proc Processor, logger *zap.Logger) *Issuer {
	return &Issuer{
		cfg:       cfg,
		directory: directory,
		processor: proc,
		validate:  validation.New(cfg.MinAmount, cfg.Currency),
		logger:    logger,
	}
}

// CreateSession fails with apperrors.ErrInvalidInput (as a *validation.Error),
// apperrors.ErrNotFound or apperrors.ErrUpstream.
func (i *Issuer) CreateSession(ctx context.Context, req validation.CreateCheckoutRequest) (*Session, error) {
	if err := validation.Check(i.validate, req); err != nil {
		return nil, err
	}

	b, err := i.directory.Resolve(ctx, req.Slug)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			i.logger.Info("gift page not found", zap.String("slug", req.Slug), zap.Error(err))
		}
		return nil, err
	}

	description := req.Message
	if description == "" {
		description = fmt.Sprintf("A gift towards %s's education", b.Child.FirstName)
	}

	sess, err := i.processor.CreateCheckoutSession(ctx, processor.SessionInput{
		Currency:    i.cfg.Currency,
		ProductName: "RESP Gift for " + b.Child.FirstName,
		Description: description,
		UnitAmount:  req.Amount,
		SuccessURL:  i.cfg.BaseURL + "/thanks?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   i.cfg.BaseURL + "/for/" + req.Slug,
		Metadata: map[string]string{
			MetaChildID:     b.Child.ID,
			MetaSlug:        req.Slug,
			MetaGifterName:  req.GifterName,
			MetaGifterEmail: req.GifterEmail,
			MetaMessage:     req.Message,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstream, err)
	}

	i.logger.Info("checkout session created",
		zap.String("session_id", sess.ID),
		zap.String("child_id", b.Child.ID),
		zap.String("slug", req.Slug),
		zap.Int64("amount", req.Amount))

	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

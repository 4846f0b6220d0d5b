// Package pages resolves public gift-page slugs to the child they belong to.
package pages

import (
	"context"
	"errors"
	"fmt"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/apperrors"
	"github.com/imrishuroy/go-idempotent-giftflow/internal/docstore"
)

// Collection names read by the Directory.
const (
	SlugIndex = "slugIndex"
	Children  = "children"
	GiftPages = "giftPages"
)

// SlugEntry maps a slug to its child (slugIndex/{slug}).
type SlugEntry struct {
	Slug    string `dynamodbav:"slug"`
	ChildID string `dynamodbav:"child_id"`
}

// Child holds the display attributes of a beneficiary (children/{child_id}).
type Child struct {
	ID           string `dynamodbav:"child_id"`
	FirstName    string `dynamodbav:"first_name"`
	HeroPhotoURL string `dynamodbav:"hero_photo_url,omitempty"`
}

// GiftPage is the public page of a child (giftPages/{child_id}).
type GiftPage struct {
	ChildID     string `dynamodbav:"child_id"`
	Title       string `dynamodbav:"title"`
	Description string `dynamodbav:"description"`
	GoalAmount  int64  `dynamodbav:"goal_amount"`
	Theme       string `dynamodbav:"theme"`
	IsPublic    bool   `dynamodbav:"is_public"`
}

// Beneficiary is a fully resolved slug.
type Beneficiary struct {
	Slug  string
	Child Child
	Page  GiftPage
}

// Collections describes the three tables read by the Directory.
func Collections(slugTable, childrenTable, pagesTable string) map[string]docstore.Collection {
	return map[string]docstore.Collection{
		SlugIndex: {Table: slugTable, KeyAttr: "slug"},
		Children:  {Table: childrenTable, KeyAttr: "child_id"},
		GiftPages: {Table: pagesTable, KeyAttr: "child_id"},
	}
}

// Directory reads beneficiary documents.
type Directory struct {
	store docstore.Store
}

func NewDirectory(store docstore.Store) *Directory {
	return &Directory{store: store}
}

// Resolve follows slug -> child id -> child and gift page. Any miss is
// apperrors.ErrNotFound; store failures are apperrors.ErrUpstream.
func (d *Directory) Resolve(ctx context.Context, slug string) (*Beneficiary, error) {
	var entry SlugEntry
	if err := d.get(ctx, SlugIndex, slug, &entry); err != nil {
		return nil, err
	}
	if entry.ChildID == "" {
		return nil, fmt.Errorf("%w: slug %q has no child", apperrors.ErrNotFound, slug)
	}

	b := &Beneficiary{Slug: slug}
	if err := d.get(ctx, Children, entry.ChildID, &b.Child); err != nil {
		return nil, err
	}
	if err := d.get(ctx, GiftPages, entry.ChildID, &b.Page); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *Directory) get(ctx context.Context, collection, key string, out any) error {
	err := d.store.Get(ctx, collection, key, out)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s/%s", apperrors.ErrNotFound, collection, key)
	}
	if err != nil {
		return fmt.Errorf("%w: read %s/%s: %v", apperrors.ErrUpstream, collection, key, err)
	}
	return nil
}

// Register creates the slug, child and page documents for a new gift page.
// Used to seed the in-memory store for local runs.
func (d *Directory) Register(ctx context.Context, slug string, child Child, page GiftPage) error {
	if slug == "" || child.ID == "" {
		return fmt.Errorf("%w: slug and child id are required", apperrors.ErrInvalidInput)
	}
	page.ChildID = child.ID
	if err := d.store.Put(ctx, Children, child.ID, child); err != nil {
		return fmt.Errorf("put child %s: %w", child.ID, err)
	}
	if err := d.store.Put(ctx, GiftPages, child.ID, page); err != nil {
		return fmt.Errorf("put gift page %s: %w", child.ID, err)
	}
	if err := d.store.Put(ctx, SlugIndex, slug, SlugEntry{Slug: slug, ChildID: child.ID}); err != nil {
		return fmt.Errorf("put slug %s: %w", slug, err)
	}
	return nil
}

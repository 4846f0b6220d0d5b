// Package docstore is the narrow document-store contract the ledger and the
// beneficiary directory are written against: point reads, create-only puts,
// conditional updates and single-field equality queries ordered by a sort
// field. Documents are encoded with the dynamodbav struct tags in every
// implementation.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("docstore: not found")
	// ErrAlreadyExists is returned by Put when the key is taken.
	ErrAlreadyExists = errors.New("docstore: already exists")
	// ErrConditionFailed is returned by UpdateIfExists when a Condition does not hold.
	ErrConditionFailed = errors.New("docstore: condition failed")
)

// Direction orders query results by the index sort field.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Condition guards an update: Field must currently equal Equals.
type Condition struct {
	Field  string
	Equals any
}

// Query selects documents whose Field equals Value, ordered by OrderBy.
// OrderBy may be empty when the caller does not care about order.
type Query struct {
	Field     string
	Value     any
	OrderBy   string
	Direction Direction
	Limit     int
}

// Store is implemented by DynamoStore and MemoryStore.
type Store interface {
	// Get decodes the document at key into out. Returns ErrNotFound on a miss.
	Get(ctx context.Context, collection, key string, out any) error
	// Put creates doc at key. Returns ErrAlreadyExists if the key is taken.
	Put(ctx context.Context, collection, key string, doc any) error
	// UpdateIfExists sets the patch fields on an existing document when all
	// conditions hold. Returns ErrNotFound or ErrConditionFailed otherwise.
	UpdateIfExists(ctx context.Context, collection, key string, patch map[string]any, conds ...Condition) error
	// QueryByEquals decodes matching documents into out, a pointer to a slice.
	QueryByEquals(ctx context.Context, collection string, q Query, out any) error
}

// Index describes a secondary index: its partition field and optional sort field.
type Index struct {
	Name    string
	SortKey string
}

// Collection maps a logical collection onto a table.
type Collection struct {
	Table   string
	KeyAttr string
	// Indexes is keyed by the partition field of each secondary index.
	Indexes map[string]Index
}

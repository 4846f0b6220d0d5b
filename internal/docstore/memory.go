package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MemoryStore is an in-process Store used for local runs (store.driver=memory)
// and tests. It applies the same conditional semantics as DynamoStore under a
// single mutex.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]Collection
	items       map[string]map[string]map[string]types.AttributeValue
}

// NewMemoryStore returns an empty store for the given collections.
func NewMemoryStore(collections map[string]Collection) *MemoryStore {
	return &MemoryStore{
		collections: collections,
		items:       map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *MemoryStore) table(name string) (Collection, map[string]map[string]types.AttributeValue, error) {
	c, ok := m.collections[name]
	if !ok {
		return Collection{}, nil, fmt.Errorf("docstore: unknown collection %q", name)
	}
	t, ok := m.items[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.items[name] = t
	}
	return c, t, nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) Get(ctx context.Context, collection, key string, out any) error {
	m.mu.Lock()
	_, t, err := m.table(collection)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	item, ok := t[key]
	if ok {
		item = copyItem(item)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return attributevalue.UnmarshalMap(item, out)
}

func (m *MemoryStore) Put(ctx context.Context, collection, key string, doc any) error {
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, t, err := m.table(collection)
	if err != nil {
		return err
	}
	if _, exists := t[key]; exists {
		return ErrAlreadyExists
	}
	item[c.KeyAttr] = &types.AttributeValueMemberS{Value: key}
	t[key] = item
	return nil
}

func (m *MemoryStore) UpdateIfExists(ctx context.Context, collection, key string, patch map[string]any, conds ...Condition) error {
	if len(patch) == 0 {
		return fmt.Errorf("docstore: empty patch for %s/%s", collection, key)
	}
	encoded := make(map[string]types.AttributeValue, len(patch))
	for f, v := range patch {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", f, err)
		}
		encoded[f] = av
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, t, err := m.table(collection)
	if err != nil {
		return err
	}
	item, ok := t[key]
	if !ok {
		return ErrNotFound
	}
	for _, cond := range conds {
		want, err := attributevalue.Marshal(cond.Equals)
		if err != nil {
			return fmt.Errorf("marshal condition %s: %w", cond.Field, err)
		}
		if !reflect.DeepEqual(item[cond.Field], want) {
			return ErrConditionFailed
		}
	}

	next := copyItem(item)
	for f, av := range encoded {
		next[f] = av
	}
	t[key] = next
	return nil
}

func (m *MemoryStore) QueryByEquals(ctx context.Context, collection string, q Query, out any) error {
	want, err := attributevalue.Marshal(q.Value)
	if err != nil {
		return fmt.Errorf("marshal query value: %w", err)
	}

	m.mu.Lock()
	c, t, err := m.table(collection)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if q.Field != c.KeyAttr {
		idx, ok := c.Indexes[q.Field]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("docstore: no index on %s.%s", collection, q.Field)
		}
		if q.OrderBy != "" && q.OrderBy != idx.SortKey {
			m.mu.Unlock()
			return fmt.Errorf("docstore: index %s is not sorted by %s", idx.Name, q.OrderBy)
		}
	}

	var matched []map[string]types.AttributeValue
	for _, item := range t {
		if !reflect.DeepEqual(item[q.Field], want) {
			continue
		}
		if q.OrderBy != "" && item[q.OrderBy] == nil {
			continue
		}
		matched = append(matched, copyItem(item))
	}
	m.mu.Unlock()

	sortBy := q.OrderBy
	if sortBy == "" {
		sortBy = c.KeyAttr
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if q.Direction == Descending {
			return lessAttr(matched[j][sortBy], matched[i][sortBy])
		}
		return lessAttr(matched[i][sortBy], matched[j][sortBy])
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if matched == nil {
		matched = []map[string]types.AttributeValue{}
	}
	return attributevalue.UnmarshalListOfMaps(matched, out)
}

// lessAttr orders string and number attributes the way DynamoDB sort keys do.
func lessAttr(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		if bv, ok := b.(*types.AttributeValueMemberS); ok {
			return av.Value < bv.Value
		}
	case *types.AttributeValueMemberN:
		if bv, ok := b.(*types.AttributeValueMemberN); ok {
			x, _ := strconv.ParseFloat(av.Value, 64)
			y, _ := strconv.ParseFloat(bv.Value, 64)
			return x < y
		}
	}
	return false
}

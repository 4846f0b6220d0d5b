package docstore

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo understands exactly the expressions DynamoStore emits:
// attribute_not_exists(#k) puts, "SET #fN = :fN" updates guarded by
// "attribute_exists(#k) AND #cN = :cN", and "#p = :p" key conditions.
type mockDynamo struct {
	mu      sync.Mutex
	tables  map[string]map[string]map[string]types.AttributeValue
	queries []*dyn.QueryInput
	failAll error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *mockDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.tables[name] = t
	}
	return t
}

func singleKey(key map[string]types.AttributeValue) (string, error) {
	for _, v := range key {
		return v.(*types.AttributeValueMemberS).Value, nil
	}
	return "", errors.New("empty key")
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	pk, err := singleKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*params.TableName)[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	keyAttr := params.ExpressionAttributeNames["#k"]
	kv, ok := params.Item[keyAttr].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("no primary key in put item")
	}
	t := m.table(*params.TableName)
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(#k)" {
		if _, exists := t[kv.Value]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	t[kv.Value] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	pk, err := singleKey(params.Key)
	if err != nil {
		return nil, err
	}
	t := m.table(*params.TableName)
	item, exists := t[pk]
	if !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	for name, attr := range params.ExpressionAttributeNames {
		if strings.HasPrefix(name, "#c") {
			want := params.ExpressionAttributeValues[":c"+strings.TrimPrefix(name, "#c")]
			if !reflect.DeepEqual(item[attr], want) {
				return nil, &types.ConditionalCheckFailedException{Item: item}
			}
		}
	}
	next := map[string]types.AttributeValue{}
	for k, v := range item {
		next[k] = v
	}
	for name, attr := range params.ExpressionAttributeNames {
		if strings.HasPrefix(name, "#f") {
			next[attr] = params.ExpressionAttributeValues[":f"+strings.TrimPrefix(name, "#f")]
		}
	}
	t[pk] = next
	return &dyn.UpdateItemOutput{}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	m.queries = append(m.queries, params)
	field := params.ExpressionAttributeNames["#p"]
	want := params.ExpressionAttributeValues[":p"]
	var items []map[string]types.AttributeValue
	for _, item := range m.table(*params.TableName) {
		if reflect.DeepEqual(item[field], want) {
			items = append(items, item)
		}
	}
	if params.Limit != nil && len(items) > int(*params.Limit) {
		items = items[:*params.Limit]
	}
	return &dyn.QueryOutput{Items: items}, nil
}

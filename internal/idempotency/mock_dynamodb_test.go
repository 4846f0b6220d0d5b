package idempotency

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a very small in-memory mock for PutItem/GetItem/UpdateItem used in unit tests.
// It understands only the expressions Store issues.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
	failWith    error
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func keyValue(m map[string]types.AttributeValue) (string, error) {
	attr, ok := m["event_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing key")
	}
	return attr.Value, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	k, err := keyValue(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(event_id)" {
		if _, ok := m.table[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	k, err := keyValue(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	k, err := keyValue(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	cond := ""
	if params.ConditionExpression != nil {
		cond = *params.ConditionExpression
	}
	if !ok {
		if strings.Contains(cond, "attribute_exists(event_id)") {
			return nil, &types.ConditionalCheckFailedException{}
		}
		return nil, errors.New("item not found")
	}
	if strings.Contains(cond, "#s <> :done") {
		if st, ok := item["status"].(*types.AttributeValueMemberS); ok && st.Value == StatusDone {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	vals := params.ExpressionAttributeValues
	if v, ok := vals[":inc"]; ok {
		cur := 0
		if n, ok := item["attempts"].(*types.AttributeValueMemberN); ok {
			cur, _ = strconv.Atoi(n.Value)
		}
		inc, _ := strconv.Atoi(v.(*types.AttributeValueMemberN).Value)
		item["attempts"] = &types.AttributeValueMemberN{Value: strconv.Itoa(cur + inc)}
	}
	if v, ok := vals[":o"]; ok {
		item["outcome"] = v
	}
	if v, ok := vals[":n"]; ok {
		item["note"] = v
	}
	if v, ok := vals[":ea"]; ok {
		item["expires_at"] = v
	}
	if v, ok := vals[":ua"]; ok {
		item["updated_at"] = v
	}
	if v, ok := vals[":failed"]; ok {
		item["status"] = v
	} else if v, ok := vals[":done"]; ok {
		item["status"] = v
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

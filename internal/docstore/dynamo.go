package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/aws"
)

// DynamoStore implements Store with one DynamoDB table per collection.
type DynamoStore struct {
	client      aws.DynamoDBAPI
	collections map[string]Collection
}

// NewDynamoStore returns a store serving the given collections.
func NewDynamoStore(client aws.DynamoDBAPI, collections map[string]Collection) *DynamoStore {
	return &DynamoStore{
		client:      client,
		collections: collections,
	}
}

func (s *DynamoStore) collection(name string) (Collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return Collection{}, fmt.Errorf("docstore: unknown collection %q", name)
	}
	return c, nil
}

func keyOf(c Collection, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		c.KeyAttr: &types.AttributeValueMemberS{Value: key},
	}
}

// Get fetches a document with a strongly consistent read.
func (s *DynamoStore) Get(ctx context.Context, collection, key string, out any) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	res, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &c.Table,
		Key:            keyOf(c, key),
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("get item: %w", err)
	}
	if len(res.Item) == 0 {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return fmt.Errorf("unmarshal item: %w", err)
	}
	return nil
}

// Put creates the document only when attribute_not_exists(key).
func (s *DynamoStore) Put(ctx context.Context, collection, key string, doc any) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	item[c.KeyAttr] = &types.AttributeValueMemberS{Value: key}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &c.Table,
		Item:                     item,
		ConditionExpression:      sdkaws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{"#k": c.KeyAttr},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// UpdateIfExists issues a single conditional UpdateItem:
//
//	SET #f0 = :f0, ... IF attribute_exists(#k) AND #c0 = :c0 ...
//
// The old item is returned on a failed condition so a missing document can
// be told apart from a guard mismatch.
func (s *DynamoStore) UpdateIfExists(ctx context.Context, collection, key string, patch map[string]any, conds ...Condition) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	if len(patch) == 0 {
		return fmt.Errorf("docstore: empty patch for %s/%s", collection, key)
	}

	names := map[string]string{"#k": c.KeyAttr}
	values := make(map[string]types.AttributeValue, len(patch)+len(conds))

	fields := make([]string, 0, len(patch))
	for f := range patch {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	sets := make([]string, 0, len(fields))
	for i, f := range fields {
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
		av, err := attributevalue.Marshal(patch[f])
		if err != nil {
			return fmt.Errorf("marshal %s: %w", f, err)
		}
		names[n] = f
		values[v] = av
		sets = append(sets, n+" = "+v)
	}

	guards := []string{"attribute_exists(#k)"}
	for i, cond := range conds {
		n, v := fmt.Sprintf("#c%d", i), fmt.Sprintf(":c%d", i)
		av, err := attributevalue.Marshal(cond.Equals)
		if err != nil {
			return fmt.Errorf("marshal condition %s: %w", cond.Field, err)
		}
		names[n] = cond.Field
		values[v] = av
		guards = append(guards, n+" = "+v)
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                           &c.Table,
		Key:                                 keyOf(c, key),
		UpdateExpression:                    sdkaws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:                 sdkaws.String(strings.Join(guards, " AND ")),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return ErrNotFound
			}
			return ErrConditionFailed
		}
		if isConditionalCheckFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// QueryByEquals queries the table when q.Field is the key attribute, and the
// matching secondary index otherwise. q.OrderBy must be that index's sort key.
func (s *DynamoStore) QueryByEquals(ctx context.Context, collection string, q Query, out any) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}

	av, err := attributevalue.Marshal(q.Value)
	if err != nil {
		return fmt.Errorf("marshal query value: %w", err)
	}
	input := &dyn.QueryInput{
		TableName:                 &c.Table,
		KeyConditionExpression:    sdkaws.String("#p = :p"),
		ExpressionAttributeNames:  map[string]string{"#p": q.Field},
		ExpressionAttributeValues: map[string]types.AttributeValue{":p": av},
		ScanIndexForward:          sdkaws.Bool(q.Direction == Ascending),
	}
	if q.Field != c.KeyAttr {
		idx, ok := c.Indexes[q.Field]
		if !ok {
			return fmt.Errorf("docstore: no index on %s.%s", collection, q.Field)
		}
		if q.OrderBy != "" && q.OrderBy != idx.SortKey {
			return fmt.Errorf("docstore: index %s is not sorted by %s", idx.Name, q.OrderBy)
		}
		input.IndexName = sdkaws.String(idx.Name)
	}

	var items []map[string]types.AttributeValue
	for {
		if q.Limit > 0 {
			input.Limit = sdkaws.Int32(int32(q.Limit - len(items)))
		}
		res, err := s.client.Query(ctx, input)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		items = append(items, res.Items...)
		if len(res.LastEvaluatedKey) == 0 || (q.Limit > 0 && len(items) >= q.Limit) {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}

	if err := attributevalue.UnmarshalListOfMaps(items, out); err != nil {
		return fmt.Errorf("unmarshal items: %w", err)
	}
	return nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

// Package idempotency records which Stripe events have been processed so an
// exact redelivery of a finished event is answered without touching the
// ledger. Entries expire through the table's DynamoDB TTL on expires_at.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const maxNoteLen = 512

// DynamoDBAPI is the part of the DynamoDB client the event log uses.
// aws.DynamoDBAPI satisfies it.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error)
	PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error)
}

// Store encapsulates processed-event operations against DynamoDB.
type Store struct {
	client    DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long an event id is remembered
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for processed events.
// ttlWindow: retention (e.g., 72*time.Hour, Stripe retries for up to three days)
func NewStore(client DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func eventKey(eventID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"event_id": &types.AttributeValueMemberS{Value: eventID},
	}
}

// Lookup retrieves the record for an event id. If not found, returns (nil, nil).
func (s *Store) Lookup(ctx context.Context, eventID string) (*EventRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            eventKey(eventID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec EventRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// Begin creates an IN_PROGRESS record if the event id is new.
// Returns (created=true, nil) if successfully created.
// Returns (created=false, nil) if a record already exists; its attempt
// counter is bumped so repeated redeliveries are visible.
func (s *Store) Begin(ctx context.Context, eventID, eventType string) (bool, error) {
	now := s.nowFunc().UTC()
	rec := EventRecord{
		EventID:   eventID,
		EventType: eventType,
		Status:    StatusInProgress,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(event_id)"),
	})
	if err == nil {
		return true, nil
	}
	if !isConditionalCheckFailed(err) {
		return false, fmt.Errorf("put item: %w", err)
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              eventKey(eventID),
		UpdateExpression: awsString("SET attempts = if_not_exists(attempts, :zero) + :inc, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":inc":  &types.AttributeValueMemberN{Value: "1"},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		return false, fmt.Errorf("increment attempts: %w", err)
	}
	return false, nil
}

// MarkDone sets status to DONE with the routing outcome and pushes the
// expiry out by another TTL window.
func (s *Store) MarkDone(ctx context.Context, eventID, outcome string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              eventKey(eventID),
		UpdateExpression: awsString("SET #s = :done, outcome = :o, updated_at = :ua, expires_at = :ea"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":o":    &types.AttributeValueMemberS{Value: outcome},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":ea":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
		},
		ConditionExpression: awsString("attribute_exists(event_id)"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed marks the record FAILED and stores a note. A DONE record is
// left alone.
func (s *Store) MarkFailed(ctx context.Context, eventID, note string) error {
	note = truncateNote(note)
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              eventKey(eventID),
		UpdateExpression: awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":done":   &types.AttributeValueMemberS{Value: StatusDone},
		},
		ConditionExpression: awsString("attribute_exists(event_id) AND #s <> :done"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return nil
		}
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

// truncateNote cuts note to at most maxNoteLen bytes on a rune boundary.
func truncateNote(note string) string {
	if len(note) <= maxNoteLen {
		return note
	}
	i := maxNoteLen
	for i > 0 && !utf8.RuneStart(note[i]) {
		i--
	}
	return note[:i]
}

func isConditionalCheckFailed(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }

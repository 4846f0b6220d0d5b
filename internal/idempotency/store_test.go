package idempotency

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-idempotent-giftflow/internal/aws"
)

// the production client and the test mock both satisfy the event log's client
var (
	_ DynamoDBAPI = aws.DynamoDBAPI(nil)
	_ DynamoDBAPI = (*simpleMock)(nil)
)

func newTestStore() (*Store, *simpleMock, *time.Time) {
	mock := newSimpleMock()
	s := NewStore(mock, "stripe-events-table", 72*time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }
	return s, mock, &now
}

func TestBegin_Lookup_MarkDone(t *testing.T) {
	s, mock, now := newTestStore()
	ctx := context.Background()

	rec, err := s.Lookup(ctx, "evt_1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	created, err := s.Begin(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.True(t, created)

	rec, err = s.Lookup(ctx, "evt_1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, "checkout.session.completed", rec.EventType)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, now.Add(72*time.Hour).Unix(), rec.ExpiresAt)

	created, err = s.Begin(ctx, "evt_1", "checkout.session.completed")
	require.NoError(t, err)
	assert.False(t, created, "second begin sees the existing record")

	require.NoError(t, s.MarkDone(ctx, "evt_1", "handled"))

	rec, err = s.Lookup(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Status)
	assert.Equal(t, "handled", rec.Outcome)
	assert.Equal(t, 2, rec.Attempts)

	item := mock.table["evt_1"]
	st, ok := item["status"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, StatusDone, st.Value)
}

func TestMarkFailed(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	_, err := s.Begin(ctx, "evt_2", "payment_intent.succeeded")
	require.NoError(t, err)

	require.NoError(t, s.MarkFailed(ctx, "evt_2", strings.Repeat("x", 2000)))
	rec, err := s.Lookup(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Len(t, rec.Note, maxNoteLen)

	// a later successful redelivery wins, and a stale failure cannot undo it
	require.NoError(t, s.MarkDone(ctx, "evt_2", "handled"))
	require.NoError(t, s.MarkFailed(ctx, "evt_2", "late failure"))
	rec, err = s.Lookup(ctx, "evt_2")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Status)
}

func TestMarkFailed_NoteKeepsRunes(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	_, err := s.Begin(ctx, "evt_3", "checkout.session.completed")
	require.NoError(t, err)

	// 'é' is two bytes, so byte 512 falls inside a rune
	note := "x" + strings.Repeat("é", 600)
	require.NoError(t, s.MarkFailed(ctx, "evt_3", note))

	rec, err := s.Lookup(ctx, "evt_3")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(rec.Note))
	assert.Len(t, rec.Note, maxNoteLen-1)
	assert.True(t, strings.HasPrefix(note, rec.Note))
}

func TestTruncateNote(t *testing.T) {
	assert.Equal(t, "short", truncateNote("short"))
	assert.Len(t, truncateNote(strings.Repeat("a", 1000)), maxNoteLen)
	assert.Equal(t, strings.Repeat("€", maxNoteLen/3), truncateNote(strings.Repeat("€", 400)))
}

func TestMarkDone_UnknownEvent(t *testing.T) {
	s, _, _ := newTestStore()
	assert.Error(t, s.MarkDone(context.Background(), "evt_missing", "handled"))
}

func TestStore_WrapsClientErrors(t *testing.T) {
	s, mock, _ := newTestStore()
	mock.failWith = errors.New("RequestLimitExceeded")
	ctx := context.Background()

	_, err := s.Lookup(ctx, "evt_1")
	assert.ErrorIs(t, err, mock.failWith)

	_, err = s.Begin(ctx, "evt_1", "x")
	assert.ErrorIs(t, err, mock.failWith)

	assert.ErrorIs(t, s.MarkDone(ctx, "evt_1", "handled"), mock.failWith)
	assert.ErrorIs(t, s.MarkFailed(ctx, "evt_1", "n"), mock.failWith)
}

package dynamo

import (
	"context"
	"testing"

	"awscqrs/internal/changefeed"
	"awscqrs/internal/domain/event"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable evaluates the append condition the way DynamoDB does for this
// table's key schema.
type fakeTable struct {
	items   map[string]map[string]types.AttributeValue
	queries []*dynamodb.QueryInput
	pages   []*dynamodb.QueryOutput
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: map[string]map[string]types.AttributeValue{}}
}

func key(item map[string]types.AttributeValue) string {
	owner := item["owner"].(*types.AttributeValueMemberS).Value
	ts := item["timestamp"].(*types.AttributeValueMemberS).Value
	return owner + "|" + ts
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	k := key(in.Item)
	if existing, ok := f.items[k]; ok {
		want := in.ExpressionAttributeValues[":id"].(*types.AttributeValueMemberS).Value
		if existing["id"].(*types.AttributeValueMemberS).Value != want {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[key(in.Key)]}, nil
}

func (f *fakeTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	copied := *in
	f.queries = append(f.queries, &copied)
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func TestAppend_WritesFlatItemWithCondition(t *testing.T) {
	table := newFakeTable()
	store := NewEventStore(table, Config{Table: "EventTable"})
	e := event.Event{
		Owner: "alice", Timestamp: "2024-01-01T00:00:00.000000000Z", ID: uuid.New(),
		Payload: map[string]any{"name": "buy milk", "completed": false},
	}

	require.NoError(t, store.Append(context.Background(), e))
	item := table.items["alice|2024-01-01T00:00:00.000000000Z"]
	require.NotNil(t, item)
	assert.Equal(t, "buy milk", item["name"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, false, item["completed"].(*types.AttributeValueMemberBOOL).Value)

	got, err := store.Get(context.Background(), "alice", e.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "buy milk", got.Payload["name"])
}

func TestAppend_RetryAndConflict(t *testing.T) {
	table := newFakeTable()
	store := NewEventStore(table, Config{Table: "EventTable"})
	e := event.Event{Owner: "alice", Timestamp: "2024-01-01T00:00:00.000000000Z", ID: uuid.New()}

	require.NoError(t, store.Append(context.Background(), e))
	assert.NoError(t, store.Append(context.Background(), e))

	e.ID = uuid.New()
	assert.ErrorIs(t, store.Append(context.Background(), e), awscqrs_errors.ErrConflict)
}

func TestGet_NotFound(t *testing.T) {
	store := NewEventStore(newFakeTable(), Config{Table: "EventTable"})
	_, err := store.Get(context.Background(), "alice", "nope")
	assert.ErrorIs(t, err, awscqrs_errors.ErrNotFound)
}

func sdkItem(t *testing.T, e event.Event) map[string]types.AttributeValue {
	t.Helper()
	img, err := changefeed.EncodeItem(e.Item())
	require.NoError(t, err)
	item, err := imageToSDK(img)
	require.NoError(t, err)
	return item
}

func TestListByOwner_FollowsPages(t *testing.T) {
	table := newFakeTable()
	e1 := event.Event{Owner: "alice", Timestamp: "2024-01-01T00:00:01.000000000Z", ID: uuid.New()}
	e2 := event.Event{Owner: "alice", Timestamp: "2024-01-01T00:00:02.000000000Z", ID: uuid.New()}
	table.pages = []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{sdkItem(t, e1)}, LastEvaluatedKey: map[string]types.AttributeValue{"owner": &types.AttributeValueMemberS{Value: "alice"}}},
		{Items: []map[string]types.AttributeValue{sdkItem(t, e2)}},
	}
	store := NewEventStore(table, Config{Table: "EventTable"})

	events, err := store.ListByOwner(context.Background(), "alice", "2024-01-01T00:00:00.000000000Z", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, e1.ID, events[0].ID)
	assert.Equal(t, e2.ID, events[1].ID)

	require.Len(t, table.queries, 2)
	assert.Equal(t, "#owner = :owner AND #ts > :since", aws.ToString(table.queries[0].KeyConditionExpression))
	assert.Equal(t, int32(9), aws.ToInt32(table.queries[1].Limit))
	assert.NotEmpty(t, table.queries[1].ExclusiveStartKey)
}

func TestListByTypename_UsesIndex(t *testing.T) {
	table := newFakeTable()
	table.pages = []*dynamodb.QueryOutput{{}}
	store := NewEventStore(table, Config{Table: "EventTable", TypenameIndex: "typename-index"})

	_, err := store.ListByTypename(context.Background(), "Note", 5)
	require.NoError(t, err)
	assert.Equal(t, "typename-index", aws.ToString(table.queries[0].IndexName))

	_, err = NewEventStore(table, Config{Table: "EventTable"}).ListByTypename(context.Background(), "Note", 5)
	assert.Error(t, err)
}

func TestAttributeRoundTrip(t *testing.T) {
	img := changefeed.Image{
		"l":  changefeed.List(changefeed.String("a"), changefeed.Number("1")),
		"m":  changefeed.Map(map[string]changefeed.AttributeValue{"k": changefeed.Bool(true)}),
		"ss": changefeed.StringSet("x", "y"),
		"n":  changefeed.Null(),
	}
	sdk, err := imageToSDK(img)
	require.NoError(t, err)
	assert.Equal(t, img, imageFromSDK(sdk))
}

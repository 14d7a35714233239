package dynamo

import (
	"context"
	"errors"
	"fmt"

	"awscqrs/internal/changefeed"
	"awscqrs/internal/domain/event"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the part of *dynamodb.Client the event store uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type Config struct {
	Table         string
	TypenameIndex string
}

// EventStore keeps the event log in a table keyed by owner (hash) and
// timestamp (range). Its change feed is the table's stream, pushed to the
// relay as record batches.
type EventStore struct {
	api API
	cfg Config
}

func NewEventStore(api API, cfg Config) *EventStore {
	return &EventStore{api: api, cfg: cfg}
}

func NewEventStoreFromConfig(awsCfg aws.Config, cfg Config) *EventStore {
	return NewEventStore(dynamodb.NewFromConfig(awsCfg), cfg)
}

// Append writes e unless another event already holds its (owner, timestamp).
// Rewriting the item with the same id succeeds so retries are harmless.
func (s *EventStore) Append(ctx context.Context, e event.Event) error {
	img, err := changefeed.EncodeItem(e.Item())
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	item, err := imageToSDK(img)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.ID, err)
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.cfg.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#owner) OR #id = :id"),
		ExpressionAttributeNames: map[string]string{
			"#owner": event.AttrOwner,
			"#id":    event.AttrID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: e.ID.String()},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return awscqrs_errors.ErrConflict
		}
		return err
	}
	return nil
}

func (s *EventStore) Get(ctx context.Context, owner, timestamp string) (event.Event, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.cfg.Table),
		Key: map[string]types.AttributeValue{
			event.AttrOwner:     &types.AttributeValueMemberS{Value: owner},
			event.AttrTimestamp: &types.AttributeValueMemberS{Value: timestamp},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return event.Event{}, err
	}
	if len(out.Item) == 0 {
		return event.Event{}, awscqrs_errors.ErrNotFound
	}
	return decodeItem(out.Item)
}

func (s *EventStore) ListByOwner(ctx context.Context, owner, since string, limit int) ([]event.Event, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.cfg.Table),
		KeyConditionExpression: aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#owner": event.AttrOwner,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if since != "" {
		input.KeyConditionExpression = aws.String("#owner = :owner AND #ts > :since")
		input.ExpressionAttributeNames["#ts"] = event.AttrTimestamp
		input.ExpressionAttributeValues[":since"] = &types.AttributeValueMemberS{Value: since}
	}
	return s.query(ctx, input, limit)
}

func (s *EventStore) ListByTypename(ctx context.Context, typename string, limit int) ([]event.Event, error) {
	if s.cfg.TypenameIndex == "" {
		return nil, errors.New("typename index not configured")
	}
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.cfg.Table),
		IndexName:              aws.String(s.cfg.TypenameIndex),
		KeyConditionExpression: aws.String("#typename = :typename"),
		ExpressionAttributeNames: map[string]string{
			"#typename": event.AttrTypename,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":typename": &types.AttributeValueMemberS{Value: typename},
		},
	}, limit)
}

// query follows LastEvaluatedKey until limit events are collected or the
// result set ends.
func (s *EventStore) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]event.Event, error) {
	var out []event.Event
	for {
		if limit > 0 {
			input.Limit = aws.Int32(int32(limit - len(out)))
		}
		page, err := s.api.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			e, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		if len(page.LastEvaluatedKey) == 0 || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func decodeItem(item map[string]types.AttributeValue) (event.Event, error) {
	return event.FromItem(changefeed.Flatten(imageFromSDK(item)))
}

package sns

import (
	"context"
	"errors"
	"fmt"

	"awscqrs/internal/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// API is the part of *sns.Client the publisher uses.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends messages to a FIFO topic. The topic enforces the group
// order and the deduplication window itself.
type Publisher struct {
	api      API
	topicArn string
}

func NewPublisher(api API, topicArn string) *Publisher {
	return &Publisher{api: api, topicArn: topicArn}
}

func NewPublisherFromConfig(awsCfg aws.Config, topicArn string) *Publisher {
	return NewPublisher(sns.NewFromConfig(awsCfg), topicArn)
}

func (p *Publisher) Publish(ctx context.Context, msg events.Message) error {
	topic := msg.TopicArn
	if topic == "" {
		topic = p.topicArn
	}
	if topic == "" {
		return errors.New("sns: topic arn is required")
	}
	_, err := p.api.Publish(ctx, &sns.PublishInput{
		TopicArn:               aws.String(topic),
		Message:                aws.String(msg.Body),
		MessageGroupId:         aws.String(msg.GroupID),
		MessageDeduplicationId: aws.String(msg.DedupeID),
	})
	if err != nil {
		return fmt.Errorf("sns publish to %s: %w", topic, err)
	}
	return nil
}

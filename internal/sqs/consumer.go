package sqs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"awscqrs/internal/events"
	"awscqrs/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// API is the part of *sqs.Client the consumer uses.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

type Config struct {
	QueueURL  string
	BatchSize int
	// Wait is the long-poll duration of one receive.
	Wait       time.Duration
	RetryDelay time.Duration
}

// Consumer reads a subscription queue of the topic. Messages are deleted
// only after the whole batch was handled; anything else becomes visible
// again and the queue's redrive policy dead-letters it eventually.
type Consumer struct {
	api API
	cfg Config
	log *logger.Logger
}

func NewConsumer(api API, cfg Config, log *logger.Logger) *Consumer {
	if cfg.BatchSize <= 0 || cfg.BatchSize > 10 {
		cfg.BatchSize = 10
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 20 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Consumer{api: api, cfg: cfg, log: log}
}

func NewConsumerFromConfig(awsCfg aws.Config, cfg Config, log *logger.Logger) *Consumer {
	return NewConsumer(sqs.NewFromConfig(awsCfg), cfg, log)
}

func (c *Consumer) Consume(ctx context.Context, handler events.BatchHandler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.Poll(ctx, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.WarnCtx(ctx, "queue batch failed", zap.String("queue", c.cfg.QueueURL), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.RetryDelay):
			}
		}
	}
}

// Poll receives one batch, hands it to handler and deletes it on success.
func (c *Consumer) Poll(ctx context.Context, handler events.BatchHandler) (int, error) {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.cfg.QueueURL),
		MaxNumberOfMessages: int32(c.cfg.BatchSize),
		WaitTimeSeconds:     int32(c.cfg.Wait / time.Second),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("receive from %s: %w", c.cfg.QueueURL, err)
	}
	if len(out.Messages) == 0 {
		return 0, nil
	}

	batch := make([]events.Delivery, 0, len(out.Messages))
	entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(out.Messages))
	for i, m := range out.Messages {
		attempt, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
		if attempt == 0 {
			attempt = 1
		}
		batch = append(batch, events.Delivery{
			ID:      aws.ToString(m.MessageId),
			Body:    []byte(aws.ToString(m.Body)),
			Attempt: attempt,
		})
		entries = append(entries, types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: m.ReceiptHandle,
		})
	}

	if err := handler.HandleBatch(ctx, batch); err != nil {
		return len(batch), err
	}

	del, err := c.api.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(c.cfg.QueueURL),
		Entries:  entries,
	})
	if err != nil {
		return len(batch), fmt.Errorf("delete batch: %w", err)
	}
	if len(del.Failed) > 0 {
		return len(batch), fmt.Errorf("delete batch: %d of %d entries failed (%s)",
			len(del.Failed), len(entries), aws.ToString(del.Failed[0].Message))
	}
	return len(batch), nil
}

package sqs

import (
	"context"
	"errors"
	"testing"

	"awscqrs/internal/events"
	"awscqrs/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	messages []types.Message
	deleted  [][]types.DeleteMessageBatchRequestEntry
}

func (f *fakeQueue) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	n := int(in.MaxNumberOfMessages)
	if n > len(f.messages) {
		n = len(f.messages)
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages[:n]}, nil
}

func (f *fakeQueue) DeleteMessageBatch(_ context.Context, in *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	f.deleted = append(f.deleted, in.Entries)
	return &sqs.DeleteMessageBatchOutput{}, nil
}

func message(id, body, receiveCount string) types.Message {
	return types.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(body),
		Attributes:    map[string]string{"ApproximateReceiveCount": receiveCount},
	}
}

func TestPoll_DeletesAfterSuccess(t *testing.T) {
	q := &fakeQueue{messages: []types.Message{
		message("m1", `{"Message":"{\"id\":\"e1\"}"}`, "1"),
		message("m2", `{"Message":"{\"id\":\"e2\"}"}`, "3"),
	}}
	c := NewConsumer(q, Config{QueueURL: "https://sqs/contacts.fifo"}, logger.NewNop())

	var got []events.Delivery
	n, err := c.Poll(context.Background(), events.BatchHandlerFunc(func(_ context.Context, batch []events.Delivery) error {
		got = batch
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, got[1].Attempt)
	require.Len(t, q.deleted, 1)
	assert.Equal(t, "rh-m1", aws.ToString(q.deleted[0][0].ReceiptHandle))
}

func TestPoll_KeepsBatchOnFailure(t *testing.T) {
	q := &fakeQueue{messages: []types.Message{message("m1", `{}`, "1")}}
	c := NewConsumer(q, Config{QueueURL: "https://sqs/contacts.fifo"}, logger.NewNop())

	_, err := c.Poll(context.Background(), events.BatchHandlerFunc(func(context.Context, []events.Delivery) error {
		return errors.New("store down")
	}))
	assert.Error(t, err)
	assert.Empty(t, q.deleted)
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Attribute names the pipeline relies on inside a notification.
const (
	FieldOwner     = "owner"
	FieldID        = "id"
	FieldTimestamp = "timestamp"
	FieldTypename  = "typename"
	FieldRequestID = "RequestId"
)

// Subscription names used by the projector and the live notifier.
const (
	SubscriptionContacts     = "contacts"
	SubscriptionContactCache = "contact-cache"
	SubscriptionGraphQL      = "graphql"
	SubscriptionArchive      = "archive"
	SubscriptionLive         = "live"
)

// Notification is a flattened change-feed image.
type Notification map[string]any

func (n Notification) str(key string) string {
	if v, ok := n[key].(string); ok {
		return v
	}
	return ""
}

func (n Notification) Owner() string     { return n.str(FieldOwner) }
func (n Notification) ID() string        { return n.str(FieldID) }
func (n Notification) Timestamp() string { return n.str(FieldTimestamp) }
func (n Notification) Typename() string  { return n.str(FieldTypename) }
func (n Notification) RequestID() string { return n.str(FieldRequestID) }

// Message is what goes onto the broadcast channel.
type Message struct {
	GroupID  string `json:"MessageGroupId"`
	DedupeID string `json:"MessageDeduplicationId"`
	Body     string `json:"Message"`
	TopicArn string `json:"TopicArn,omitempty"`
}

// NewMessage serializes n and stamps its ordering and deduplication keys.
func NewMessage(n Notification, keys KeyResolver, topicArn string) (Message, error) {
	groupID, err := keys.GroupID(n)
	if err != nil {
		return Message{}, err
	}
	dedupeID, err := keys.DedupeID(n)
	if err != nil {
		return Message{}, err
	}
	body, err := json.Marshal(n)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return Message{
		GroupID:  groupID,
		DedupeID: dedupeID,
		Body:     string(body),
		TopicArn: topicArn,
	}, nil
}

// Publisher puts messages onto an ordered, deduplicating broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg Message) error

func (f PublisherFunc) Publish(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

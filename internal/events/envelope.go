package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the transport wrapper a subscriber receives. It mirrors an SNS
// notification delivered through a queue: the flattened event travels as a
// JSON string in Message.
type Envelope struct {
	Type           string    `json:"Type,omitempty"`
	MessageID      string    `json:"MessageId,omitempty"`
	TopicArn       string    `json:"TopicArn,omitempty"`
	MessageGroupID string    `json:"MessageGroupId,omitempty"`
	DedupeID       string    `json:"MessageDeduplicationId,omitempty"`
	Message        string    `json:"Message"`
	Timestamp      time.Time `json:"Timestamp,omitempty"`
}

// WrapMessage renders msg as the envelope body a subscriber queue delivers.
func WrapMessage(msg Message, messageID string, at time.Time) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:           "Notification",
		MessageID:      messageID,
		TopicArn:       msg.TopicArn,
		MessageGroupID: msg.GroupID,
		DedupeID:       msg.DedupeID,
		Message:        msg.Body,
		Timestamp:      at.UTC(),
	})
}

var ErrNoMessage = errors.New("envelope has no Message")

// maxEnvelopeDepth allows one re-wrap by an intermediate queue on top of the
// topic envelope.
const maxEnvelopeDepth = 2

// Unwrap peels the transport envelope(s) off body and returns the event.
// The first layer is mandatory. A second layer is only followed when the
// unwrapped object is itself an envelope and not an event, since events can
// carry a Message attribute of their own.
func Unwrap(body []byte) (Notification, error) {
	var outer map[string]any
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	current := outer
	for depth := 0; depth < maxEnvelopeDepth; depth++ {
		raw, ok := current["Message"].(string)
		if !ok {
			if depth == 0 {
				return nil, ErrNoMessage
			}
			break
		}
		if depth > 0 {
			if _, isEvent := current[FieldID]; isEvent {
				break
			}
		}
		var inner map[string]any
		if err := json.Unmarshal([]byte(raw), &inner); err != nil {
			if depth == 0 {
				return nil, fmt.Errorf("decode Message: %w", err)
			}
			break
		}
		current = inner
	}
	return Notification(current), nil
}

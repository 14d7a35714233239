package changefeed

import (
	"encoding/json"
	"fmt"
)

// EventName is the kind of mutation a change record describes.
type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// Image is one before/after snapshot of a stored item.
type Image map[string]AttributeValue

// StreamRecord carries the images of a change.
type StreamRecord struct {
	Keys           Image  `json:"Keys,omitempty"`
	NewImage       Image  `json:"NewImage,omitempty"`
	OldImage       Image  `json:"OldImage,omitempty"`
	SequenceNumber string `json:"SequenceNumber,omitempty"`
	StreamViewType string `json:"StreamViewType,omitempty"`
}

// Record is a single change-feed entry.
type Record struct {
	EventID     string       `json:"eventID,omitempty"`
	EventName   EventName    `json:"eventName"`
	EventSource string       `json:"eventSource,omitempty"`
	Change      StreamRecord `json:"dynamodb"`
}

// Batch is what the feed delivers per invocation.
type Batch struct {
	Records []Record `json:"Records"`
}

// HasNewImage reports whether the record carries an after-image. Pure
// deletions do not.
func (r Record) HasNewImage() bool {
	return r.Change.NewImage != nil
}

// Flatten unwraps every attribute of img into a plain map.
func Flatten(img Image) map[string]any {
	out := make(map[string]any, len(img))
	for k, v := range img {
		out[k] = v.Unwrap()
	}
	return out
}

// DecodeBatch parses a JSON change-feed batch.
func DecodeBatch(data []byte) (Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return Batch{}, fmt.Errorf("decode change batch: %w", err)
	}
	return b, nil
}

// InsertRecord builds the record a store emits for a freshly appended item.
func InsertRecord(eventID, sequence string, keys []string, item map[string]any) (Record, error) {
	img, err := EncodeItem(item)
	if err != nil {
		return Record{}, err
	}
	keyImg := make(Image, len(keys))
	for _, k := range keys {
		if v, ok := img[k]; ok {
			keyImg[k] = v
		}
	}
	return Record{
		EventID:     eventID,
		EventName:   EventInsert,
		EventSource: "awscqrs:eventstore",
		Change: StreamRecord{
			Keys:           keyImg,
			NewImage:       img,
			SequenceNumber: sequence,
			StreamViewType: "NEW_AND_OLD_IMAGES",
		},
	}, nil
}

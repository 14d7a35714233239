package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attribute names of a stored event item. Payload fields are merged next to
// them in the same flat item.
const (
	AttrOwner     = "owner"
	AttrTimestamp = "timestamp"
	AttrID        = "id"
	AttrTypename  = "typename"
	AttrRequestID = "RequestId"
)

// TimestampLayout is the ISO-8601 layout used for the sort key. Nanosecond
// precision keeps (owner, timestamp) unique for bursts from one owner.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Event is one immutable entry of the append-only log.
type Event struct {
	Owner     string
	Timestamp string
	ID        uuid.UUID
	Typename  string
	Payload   map[string]any
}

// Item flattens the event into the stored item shape. The reserved attributes
// always win over payload fields of the same name.
func (e Event) Item() map[string]any {
	item := make(map[string]any, len(e.Payload)+4)
	for k, v := range e.Payload {
		item[k] = v
	}
	item[AttrOwner] = e.Owner
	item[AttrTimestamp] = e.Timestamp
	item[AttrID] = e.ID.String()
	if e.Typename != "" {
		item[AttrTypename] = e.Typename
	} else {
		delete(item, AttrTypename)
	}
	return item
}

// FromItem rebuilds an event from a flat stored item. Every attribute that is
// not one of the reserved ones lands in the payload.
func FromItem(item map[string]any) (Event, error) {
	var e Event
	owner, _ := item[AttrOwner].(string)
	timestamp, _ := item[AttrTimestamp].(string)
	rawID, _ := item[AttrID].(string)
	if owner == "" || timestamp == "" || rawID == "" {
		return Event{}, fmt.Errorf("event item missing owner, timestamp or id")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Event{}, fmt.Errorf("event item id %q: %w", rawID, err)
	}
	e.Owner, e.Timestamp, e.ID = owner, timestamp, id
	if typename, ok := item[AttrTypename].(string); ok {
		e.Typename = typename
	}
	e.Payload = make(map[string]any, len(item))
	for k, v := range item {
		switch k {
		case AttrOwner, AttrTimestamp, AttrID, AttrTypename:
			continue
		}
		e.Payload[k] = v
	}
	return e, nil
}

// Time parses the sort key.
func (e Event) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

// FormatTimestamp renders t as a sort key.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp reads a sort key back. Keys written by other producers with
// a shorter fraction are accepted too.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// FeedEntry is an event as seen on the change feed, with its position.
type FeedEntry struct {
	Seq   int64
	Event Event
}

// FeedCursor records how far a named feed consumer has acknowledged.
type FeedCursor struct {
	Name      string    `gorm:"primaryKey"`
	Position  int64     `gorm:"not null"`
	UpdatedAt time.Time
}

func (FeedCursor) TableName() string {
	return "feed_cursors"
}

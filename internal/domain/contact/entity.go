package contact

import (
	"fmt"
	"strconv"
	"time"

	"awscqrs/internal/domain/event"
)

// Contact is the denormalized record kept by the contact projection.
type Contact struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Completed bool      `gorm:"not null" json:"completed"`
	Owner     string    `gorm:"index" json:"owner,omitempty"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// FromNotification picks the contact fields out of a flattened event.
// completed may arrive as a BOOL, or as S / N when the producer wrote it so.
// UpdatedAt is the event's timestamp, so applying the same event again
// writes the same row.
func FromNotification(n map[string]any) (Contact, error) {
	id, ok := n["id"].(string)
	if !ok || id == "" {
		return Contact{}, fmt.Errorf("contact: missing id")
	}
	c := Contact{ID: id}
	if name, ok := n["name"].(string); ok {
		c.Name = name
	}
	if owner, ok := n["owner"].(string); ok {
		c.Owner = owner
	}
	if ts, ok := n["timestamp"].(string); ok && ts != "" {
		at, err := event.ParseTimestamp(ts)
		if err != nil {
			return Contact{}, fmt.Errorf("contact %s: invalid timestamp %q", id, ts)
		}
		c.UpdatedAt = at
	}
	switch v := n["completed"].(type) {
	case nil:
	case bool:
		c.Completed = v
	case string:
		if v == "" {
			break
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			if f, ferr := strconv.ParseFloat(v, 64); ferr == nil {
				b = f != 0
			} else {
				return Contact{}, fmt.Errorf("contact %s: invalid completed %q", id, v)
			}
		}
		c.Completed = b
	case float64:
		c.Completed = v != 0
	default:
		return Contact{}, fmt.Errorf("contact %s: invalid completed %T", id, v)
	}
	return c, nil
}

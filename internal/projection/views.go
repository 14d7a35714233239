package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"awscqrs/internal/domain/contact"
	"awscqrs/internal/events"
	"awscqrs/internal/repository"
	"awscqrs/internal/storage"
	"awscqrs/pkg/logger"
)

// NewContactProjector upserts {id, name, completed} of every notification
// into the contact store.
func NewContactProjector(repo repository.ContactRepository, log *logger.Logger) *Projector {
	return NewProjector(events.SubscriptionContacts, func(ctx context.Context, n events.Notification) error {
		c, err := contact.FromNotification(n)
		if err != nil {
			return err
		}
		return repo.Upsert(ctx, c)
	}, log)
}

type ContactCache interface {
	SetContact(ctx context.Context, c contact.Contact) error
}

// NewCacheProjector refreshes the contact query cache.
func NewCacheProjector(cache ContactCache, log *logger.Logger) *Projector {
	return NewProjector(events.SubscriptionContactCache, func(ctx context.Context, n events.Notification) error {
		c, err := contact.FromNotification(n)
		if err != nil {
			return err
		}
		return cache.SetContact(ctx, c)
	}, log)
}

type Mutator interface {
	Mutate(ctx context.Context, variables map[string]any) (json.RawMessage, error)
}

// NewGraphQLProjector forwards every notification as the variables of the
// configured mutation.
func NewGraphQLProjector(client Mutator, log *logger.Logger) *Projector {
	return NewProjector(events.SubscriptionGraphQL, func(ctx context.Context, n events.Notification) error {
		_, err := client.Mutate(ctx, map[string]any(n))
		return err
	}, log)
}

type ObjectWriter interface {
	Put(ctx context.Context, key string, body []byte) error
}

// NewArchiveProjector stores every notification as one object.
func NewArchiveProjector(store ObjectWriter, log *logger.Logger) *Projector {
	return NewProjector(events.SubscriptionArchive, func(ctx context.Context, n events.Notification) error {
		if n.Owner() == "" || n.Timestamp() == "" || n.ID() == "" {
			return fmt.Errorf("archive: notification lacks owner, timestamp or id")
		}
		body, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return store.Put(ctx, storage.ArchiveKey(n.Owner(), n.Timestamp(), n.ID()), body)
	}, log)
}

type Broadcaster interface {
	BroadcastToUser(userID string, payload []byte)
}

// LiveMessage is what connected clients receive.
type LiveMessage struct {
	Type string              `json:"type"`
	Data events.Notification `json:"data"`
}

// NewLiveProjector pushes notifications to the owner's open connections.
// Delivery is best effort; offline clients read the query API instead.
func NewLiveProjector(hub Broadcaster, log *logger.Logger) *Projector {
	return NewProjector(events.SubscriptionLive, func(ctx context.Context, n events.Notification) error {
		if n.Owner() == "" {
			return nil
		}
		payload, err := json.Marshal(LiveMessage{Type: "event", Data: n})
		if err != nil {
			return err
		}
		hub.BroadcastToUser(n.Owner(), payload)
		return nil
	}, log)
}

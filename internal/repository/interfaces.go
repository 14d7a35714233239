package repository

import (
	"context"

	"awscqrs/internal/domain/contact"
	"awscqrs/internal/domain/event"
)

// EventStore is the append-only event log.
type EventStore interface {
	Append(ctx context.Context, e event.Event) error
	Get(ctx context.Context, owner, timestamp string) (event.Event, error)
	ListByOwner(ctx context.Context, owner, since string, limit int) ([]event.Event, error)
	ListByTypename(ctx context.Context, typename string, limit int) ([]event.Event, error)
}

// FeedSource exposes the event log's change feed by position.
type FeedSource interface {
	ReadFeed(ctx context.Context, after int64, limit int) ([]event.FeedEntry, error)
}

// CursorStore persists how far each feed consumer has acknowledged.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (int64, error)
	SaveCursor(ctx context.Context, name string, position int64) error
}

// ContactRepository is the contact projection's own store.
type ContactRepository interface {
	Upsert(ctx context.Context, c contact.Contact) error
	GetByID(ctx context.Context, id string) (contact.Contact, error)
	List(ctx context.Context, owner string, limit int) ([]contact.Contact, error)
}

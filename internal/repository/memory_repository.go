package repository

import (
	"context"
	"sort"
	"sync"

	"awscqrs/internal/domain/contact"
	"awscqrs/internal/domain/event"
	awscqrs_errors "awscqrs/pkg/errors"
)

type eventKey struct {
	owner     string
	timestamp string
}

// MemoryEventRepository keeps the event log in process. It implements
// EventStore, FeedSource and CursorStore with the Postgres semantics.
type MemoryEventRepository struct {
	mu      sync.RWMutex
	log     []event.FeedEntry
	byKey   map[eventKey]int
	byID    map[string]int
	cursors map[string]int64
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		byKey:   make(map[eventKey]int),
		byID:    make(map[string]int),
		cursors: make(map[string]int64),
	}
}

func (r *MemoryEventRepository) Append(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := eventKey{owner: e.Owner, timestamp: e.Timestamp}
	if idx, ok := r.byKey[key]; ok {
		if r.log[idx].Event.ID == e.ID {
			return nil
		}
		return awscqrs_errors.ErrConflict
	}
	if _, ok := r.byID[e.ID.String()]; ok {
		return awscqrs_errors.ErrConflict
	}

	e.Payload = copyPayload(e.Payload)
	r.log = append(r.log, event.FeedEntry{Seq: int64(len(r.log) + 1), Event: e})
	r.byKey[key] = len(r.log) - 1
	r.byID[e.ID.String()] = len(r.log) - 1
	return nil
}

func (r *MemoryEventRepository) Get(_ context.Context, owner, timestamp string) (event.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byKey[eventKey{owner: owner, timestamp: timestamp}]
	if !ok {
		return event.Event{}, awscqrs_errors.ErrNotFound
	}
	return r.log[idx].Event, nil
}

func (r *MemoryEventRepository) ListByOwner(_ context.Context, owner, since string, limit int) ([]event.Event, error) {
	r.mu.RLock()
	var out []event.Event
	for _, entry := range r.log {
		if entry.Event.Owner == owner && entry.Event.Timestamp > since {
			out = append(out, entry.Event)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryEventRepository) ListByTypename(_ context.Context, typename string, limit int) ([]event.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []event.Event
	for _, entry := range r.log {
		if entry.Event.Typename != typename {
			continue
		}
		out = append(out, entry.Event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryEventRepository) ReadFeed(_ context.Context, after int64, limit int) ([]event.FeedEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if after < 0 {
		after = 0
	}
	if after >= int64(len(r.log)) {
		return nil, nil
	}
	end := int64(len(r.log))
	if limit > 0 && after+int64(limit) < end {
		end = after + int64(limit)
	}
	out := make([]event.FeedEntry, end-after)
	copy(out, r.log[after:end])
	return out, nil
}

func (r *MemoryEventRepository) LoadCursor(_ context.Context, name string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cursors[name], nil
}

func (r *MemoryEventRepository) SaveCursor(_ context.Context, name string, position int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[name] = position
	return nil
}

// MemoryContactRepository is the in-process contact projection store.
type MemoryContactRepository struct {
	mu       sync.RWMutex
	contacts map[string]contact.Contact
}

func NewMemoryContactRepository() *MemoryContactRepository {
	return &MemoryContactRepository{contacts: make(map[string]contact.Contact)}
}

func (r *MemoryContactRepository) Upsert(_ context.Context, c contact.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[c.ID] = c
	return nil
}

func (r *MemoryContactRepository) GetByID(_ context.Context, id string) (contact.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[id]
	if !ok {
		return contact.Contact{}, awscqrs_errors.ErrNotFound
	}
	return c, nil
}

func (r *MemoryContactRepository) List(_ context.Context, owner string, limit int) ([]contact.Contact, error) {
	r.mu.RLock()
	out := make([]contact.Contact, 0, len(r.contacts))
	for _, c := range r.contacts {
		if owner == "" || c.Owner == owner {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyPayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

package app

import (
	"context"
	"errors"
	"fmt"

	"awscqrs/internal/events"
	"awscqrs/internal/feed"
	"awscqrs/internal/projection"
	"awscqrs/internal/websocket"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Projector builds the projection behind a subscription.
func (r *Resources) Projector(ctx context.Context, subscription string) (*projection.Projector, error) {
	switch subscription {
	case events.SubscriptionContacts:
		repo, err := r.ContactRepository()
		if err != nil {
			return nil, err
		}
		return projection.NewContactProjector(repo, r.log), nil
	case events.SubscriptionContactCache:
		cache := r.ContactCache()
		if cache == nil {
			return nil, errors.New("the contact cache needs the redis transport")
		}
		return projection.NewCacheProjector(cache, r.log), nil
	case events.SubscriptionGraphQL:
		client, err := r.GraphQL(ctx)
		if err != nil {
			return nil, err
		}
		return projection.NewGraphQLProjector(client, r.log), nil
	case events.SubscriptionArchive:
		store, err := r.Archive(ctx)
		if err != nil {
			return nil, err
		}
		return projection.NewArchiveProjector(store, r.log), nil
	case events.SubscriptionLive:
		return nil, errors.New("the live subscription is served by the api process")
	default:
		return nil, fmt.Errorf("unknown subscription %q", subscription)
	}
}

// StartProjectors opens every subscription before anything runs, so an
// in-process bus already has all queues when the first event is published.
// Subscriptions that cannot be built are logged and skipped unless strict.
func (r *Resources) StartProjectors(ctx context.Context, g *errgroup.Group, subscriptions []string, strict bool) (int, error) {
	started := 0
	for _, name := range subscriptions {
		p, err := r.Projector(ctx, name)
		if err == nil {
			var consumer events.Consumer
			consumer, err = r.Consumer(ctx, name)
			if err == nil {
				g.Go(func() error { return consumer.Consume(ctx, p) })
				started++
				continue
			}
		}
		if strict {
			return started, fmt.Errorf("subscription %s: %w", name, err)
		}
		r.log.WarnCtx(ctx, "subscription disabled", zap.String("subscription", name), zap.Error(err))
	}
	return started, nil
}

// StartFeedRelay polls the event log and publishes it. It returns
// ErrPushedFeed when the store pushes its feed to /feed instead.
func (r *Resources) StartFeedRelay(ctx context.Context, g *errgroup.Group) error {
	store, err := r.FeedStore(ctx)
	if err != nil {
		return err
	}
	handler, err := r.CaptureHandler(ctx)
	if err != nil {
		return err
	}
	p := feed.DefaultProcessor(store, handler, r.log, r.cfg.RelayBatchSize, r.cfg.RelayInterval)
	g.Go(func() error { return p.Start(ctx) })
	return nil
}

// StartLive pushes the live subscription to the hub's connections. The hub
// itself is run by the caller.
func (r *Resources) StartLive(ctx context.Context, g *errgroup.Group, hub *websocket.Hub) error {
	consumer, err := r.Consumer(ctx, events.SubscriptionLive)
	if err != nil {
		return err
	}
	bridge := websocket.NewBridge(consumer, hub, r.log)
	g.Go(func() error { return bridge.Run(ctx) })
	return nil
}

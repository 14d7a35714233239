package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"awscqrs/config"
	"awscqrs/internal/events"
	"awscqrs/internal/services"
	"awscqrs/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Store:             config.StoreMemory,
		Transport:         config.TransportMemory,
		TopicArn:          "arn:local:topic",
		DedupeWindow:      time.Minute,
		RelayBatchSize:    10,
		RelayInterval:     5 * time.Millisecond,
		ConsumerBatchSize: 10,
		MaxDeliveries:     3,
	}
}

type probe struct {
	mu  sync.Mutex
	ids []string
	ts  []string
}

func (p *probe) HandleBatch(_ context.Context, batch []events.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range batch {
		n, err := events.Unwrap(d.Body)
		if err != nil {
			return err
		}
		p.ids = append(p.ids, n.ID())
		p.ts = append(p.ts, n.Timestamp())
	}
	return nil
}

func (p *probe) seen() ([]string, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...), append([]string(nil), p.ts...)
}

func TestPipeline_CommandToContactProjection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := New(memoryConfig(), logger.NewNop())
	g, gctx := errgroup.WithContext(ctx)

	started, err := res.StartProjectors(gctx, g, []string{events.SubscriptionContacts, events.SubscriptionGraphQL}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, started, "graphql has no url and is skipped")

	observer := &probe{}
	probeQueue, err := res.Consumer(gctx, "probe")
	require.NoError(t, err)
	g.Go(func() error { return probeQueue.Consume(gctx, observer) })

	require.NoError(t, res.StartFeedRelay(gctx, g))

	store, err := res.EventStore(ctx)
	require.NoError(t, err)
	ingress := services.NewCommandService(store, nil, logger.NewNop())
	first, err := ingress.Accept(ctx, "POST", []byte(`{"name":"buy milk","completed":false}`), "alice")
	require.NoError(t, err)
	second, err := ingress.Accept(ctx, "POST", []byte(`{"name":"call bob","completed":true}`), "alice")
	require.NoError(t, err)
	require.Less(t, first.Timestamp, second.Timestamp)

	contacts, err := res.ContactRepository()
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		list, err := contacts.List(ctx, "alice", 10)
		return err == nil && len(list) == 2
	}, 2*time.Second, 5*time.Millisecond)

	c, err := contacts.GetByID(ctx, second.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "call bob", c.Name)
	assert.True(t, c.Completed)

	ids, ts := observer.seen()
	require.Equal(t, []string{first.ID.String(), second.ID.String()}, ids)
	assert.Less(t, ts[0], ts[1])

	cancel()
	require.NoError(t, g.Wait())
}

func TestResources_Errors(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store = config.StoreDynamoDB
	res := New(cfg, logger.NewNop())
	_, err := res.FeedStore(context.Background())
	assert.ErrorIs(t, err, ErrPushedFeed)

	cfg = memoryConfig()
	cfg.Transport = "carrier-pigeon"
	_, err = New(cfg, logger.NewNop()).Publisher(context.Background())
	assert.Error(t, err)

	_, err = New(memoryConfig(), logger.NewNop()).Projector(context.Background(), events.SubscriptionContactCache)
	assert.Error(t, err)
	_, err = New(memoryConfig(), logger.NewNop()).Projector(context.Background(), events.SubscriptionLive)
	assert.Error(t, err)
}

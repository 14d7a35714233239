package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"awscqrs/internal/events"
	"awscqrs/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	Stream        string
	Group         string
	BatchSize     int
	MaxDeliveries int
	// RetryDelay is how long a failed batch rests before it is claimed again.
	RetryDelay time.Duration
	// ClaimIdle is how long an entry held by another consumer of the group
	// must sit idle before it is taken over. It must exceed the longest
	// batch a live consumer spends on.
	ClaimIdle time.Duration
	Block     time.Duration
}

// StreamConsumer reads one subscription of the stream through a consumer
// group. Entries are acknowledged only after the whole batch was handled.
// While unacknowledged entries exist nothing new is read, which keeps the
// stream order for every group. Entries delivered MaxDeliveries times move to
// the dead-letter stream.
type StreamConsumer struct {
	client   *redis.Client
	cfg      ConsumerConfig
	consumer string
	log      *logger.Logger
}

func NewStreamConsumer(client *redis.Client, cfg ConsumerConfig, log *logger.Logger) *StreamConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = 30 * time.Second
	}
	if cfg.ClaimIdle < cfg.RetryDelay {
		cfg.ClaimIdle = cfg.RetryDelay
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &StreamConsumer{
		client:   client,
		cfg:      cfg,
		consumer: cfg.Group + "-" + uuid.NewString(),
		log:      log,
	}
}

// DeadLetterStream is where exhausted entries of a subscription end up.
func DeadLetterStream(stream, group string) string {
	return stream + ":dead:" + group
}

// EnsureGroup creates the consumer group at the end of the stream. An
// existing group is left where it is.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	return nil
}

func (c *StreamConsumer) Consume(ctx context.Context, handler events.BatchHandler) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, err := c.Poll(ctx, handler)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		c.log.WarnCtx(ctx, "subscription batch failed",
			zap.String("subscription", c.cfg.Group),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}

// Poll runs one step: retry pending entries if there are any, otherwise read
// new ones. It returns the number of entries handed to handler.
func (c *StreamConsumer) Poll(ctx context.Context, handler events.BatchHandler) (int, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Start:  "-",
		End:    "+",
		Count:  int64(c.cfg.BatchSize),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}
	if len(pending) > 0 {
		return c.retry(ctx, pending, handler)
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    int64(c.cfg.BatchSize),
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("xreadgroup: %w", err)
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	attempts := make(map[string]int, len(msgs))
	for _, m := range msgs {
		attempts[m.ID] = 1
	}
	return len(msgs), c.handle(ctx, msgs, attempts, handler)
}

func (c *StreamConsumer) retry(ctx context.Context, pending []redis.XPendingExt, handler events.BatchHandler) (int, error) {
	var ids []string
	attempts := make(map[string]int, len(pending))
	for _, p := range pending {
		due := c.cfg.RetryDelay
		if p.Consumer != c.consumer {
			due = c.cfg.ClaimIdle
		}
		if p.Idle < due {
			// Entries stay in order, so nothing after a resting entry is due.
			break
		}
		if c.cfg.MaxDeliveries > 0 && int(p.RetryCount) >= c.cfg.MaxDeliveries {
			if err := c.deadLetter(ctx, p.ID, int(p.RetryCount)); err != nil {
				return 0, err
			}
			continue
		}
		ids = append(ids, p.ID)
		attempts[p.ID] = int(p.RetryCount) + 1
	}
	if len(ids) == 0 {
		return 0, nil
	}

	msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.consumer,
		MinIdle:  c.cfg.RetryDelay,
		Messages: ids,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xclaim: %w", err)
	}
	return len(msgs), c.handle(ctx, msgs, attempts, handler)
}

func (c *StreamConsumer) handle(ctx context.Context, msgs []redis.XMessage, attempts map[string]int, handler events.BatchHandler) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := make([]events.Delivery, 0, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		body, _ := m.Values[fieldBody].(string)
		batch = append(batch, events.Delivery{ID: m.ID, Body: []byte(body), Attempt: attempts[m.ID]})
		ids = append(ids, m.ID)
	}

	if err := handler.HandleBatch(ctx, batch); err != nil {
		return fmt.Errorf("subscription %s: %w", c.cfg.Group, err)
	}
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func (c *StreamConsumer) deadLetter(ctx context.Context, id string, deliveries int) error {
	entries, err := c.client.XRange(ctx, c.cfg.Stream, id, id).Result()
	if err != nil {
		return fmt.Errorf("xrange %s: %w", id, err)
	}
	values := map[string]interface{}{
		"source_id": id,
		fieldReason: fmt.Sprintf("delivered %d times", deliveries),
	}
	if len(entries) > 0 {
		for k, v := range entries[0].Values {
			values[k] = v
		}
	}

	dead := DeadLetterStream(c.cfg.Stream, c.cfg.Group)
	if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: dead, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", dead, err)
	}
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	c.log.WarnCtx(ctx, "entry moved to dead letters",
		zap.String("subscription", c.cfg.Group),
		zap.String("entry_id", id),
		zap.Int("deliveries", deliveries),
	)
	return nil
}

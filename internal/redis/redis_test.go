package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"awscqrs/internal/domain/contact"
	"awscqrs/internal/events"
	"awscqrs/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stream = "stream:events"

func newTestClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func msg(owner, dedupe string) events.Message {
	return events.Message{GroupID: owner, DedupeID: dedupe, Body: `{"owner":"` + owner + `","id":"` + dedupe + `"}`}
}

type recorder struct {
	fail    bool
	batches [][]events.Delivery
}

func (r *recorder) HandleBatch(_ context.Context, batch []events.Delivery) error {
	r.batches = append(r.batches, batch)
	if r.fail {
		return errors.New("projection down")
	}
	return nil
}

func newConsumer(c *goredis.Client, group string, maxDeliveries int) *StreamConsumer {
	return NewStreamConsumer(c, ConsumerConfig{
		Stream:        stream,
		Group:         group,
		BatchSize:     10,
		MaxDeliveries: maxDeliveries,
		RetryDelay:    5 * time.Millisecond,
		Block:         10 * time.Millisecond,
	}, logger.NewNop())
}

func TestStreamPublisher_Deduplicates(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	pub := NewStreamPublisher(c, stream, "arn:topic", time.Minute)

	require.NoError(t, pub.Publish(ctx, msg("alice", "e1")))
	require.NoError(t, pub.Publish(ctx, msg("alice", "e1")))
	require.NoError(t, pub.Publish(ctx, msg("alice", "e2")))

	n, err := c.XLen(ctx, stream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Error(t, pub.Publish(ctx, events.Message{GroupID: "alice"}))
}

// faultHook fails script calls while armed. With afterSend the script runs
// on the server and only the reply is lost.
type faultHook struct {
	armed     atomic.Bool
	afterSend bool
}

var errConnReset = errors.New("connection reset")

func (h *faultHook) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (h *faultHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		name := cmd.Name()
		if !h.armed.Load() || (name != "evalsha" && name != "eval") {
			return next(ctx, cmd)
		}
		if h.afterSend {
			if err := next(ctx, cmd); err != nil {
				return err
			}
		}
		cmd.SetErr(errConnReset)
		return errConnReset
	}
}

func (h *faultHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestStreamPublisher_RetryAfterFailedAppend(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	hook := &faultHook{}
	c.AddHook(hook)
	pub := NewStreamPublisher(c, stream, "", time.Minute)

	hook.armed.Store(true)
	require.ErrorIs(t, pub.Publish(ctx, msg("alice", "evt-1")), errConnReset)
	hook.armed.Store(false)

	require.NoError(t, pub.Publish(ctx, msg("alice", "evt-1")))
	n, err := c.XLen(ctx, stream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStreamPublisher_RetryAfterLostReply(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	hook := &faultHook{afterSend: true}
	c.AddHook(hook)
	pub := NewStreamPublisher(c, stream, "", time.Minute)

	hook.armed.Store(true)
	require.Error(t, pub.Publish(ctx, msg("alice", "evt-1")))
	hook.armed.Store(false)

	require.NoError(t, pub.Publish(ctx, msg("alice", "evt-1")))
	n, err := c.XLen(ctx, stream).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "the appended entry is not duplicated")
}

func TestStreamConsumer_FanOutAndAck(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	contacts := newConsumer(c, "contacts", 3)
	archive := newConsumer(c, "archive", 3)
	require.NoError(t, contacts.EnsureGroup(ctx))
	require.NoError(t, archive.EnsureGroup(ctx))

	pub := NewStreamPublisher(c, stream, "arn:topic", time.Minute)
	require.NoError(t, pub.Publish(ctx, msg("alice", "e1")))
	require.NoError(t, pub.Publish(ctx, msg("alice", "e2")))

	for _, consumer := range []*StreamConsumer{contacts, archive} {
		rec := &recorder{}
		n, err := consumer.Poll(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		first, err := events.Unwrap(rec.batches[0][0].Body)
		require.NoError(t, err)
		assert.Equal(t, "e1", first.ID())
		assert.Equal(t, 1, rec.batches[0][0].Attempt)

		pending, err := c.XPending(ctx, stream, consumer.cfg.Group).Result()
		require.NoError(t, err)
		assert.Zero(t, pending.Count)
	}
}

func TestStreamConsumer_FailedBatchIsRedeliveredInOrder(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	consumer := newConsumer(c, "contacts", 5)
	require.NoError(t, consumer.EnsureGroup(ctx))
	pub := NewStreamPublisher(c, stream, "", time.Minute)
	require.NoError(t, pub.Publish(ctx, msg("alice", "e1")))

	failing := &recorder{fail: true}
	_, err := consumer.Poll(ctx, failing)
	require.Error(t, err)

	require.NoError(t, pub.Publish(ctx, msg("alice", "e2")))

	time.Sleep(20 * time.Millisecond)
	ok := &recorder{}
	n, err := consumer.Poll(ctx, ok)
	require.NoError(t, err)
	require.Equal(t, 1, n, "only the pending entry is retried before new ones are read")
	assert.Equal(t, 2, ok.batches[0][0].Attempt)
	first, _ := events.Unwrap(ok.batches[0][0].Body)
	assert.Equal(t, "e1", first.ID())

	n, err = consumer.Poll(ctx, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	second, _ := events.Unwrap(ok.batches[1][0].Body)
	assert.Equal(t, "e2", second.ID())
}

func TestStreamConsumer_LeavesBusyEntriesOfOtherReplicas(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	first := newConsumer(c, "contacts", 5)
	second := newConsumer(c, "contacts", 5)
	require.NoError(t, first.EnsureGroup(ctx))
	pub := NewStreamPublisher(c, stream, "", time.Minute)
	require.NoError(t, pub.Publish(ctx, msg("alice", "e1")))

	_, err := first.Poll(ctx, &recorder{fail: true})
	require.Error(t, err)
	time.Sleep(20 * time.Millisecond)

	other := &recorder{}
	n, err := second.Poll(ctx, other)
	require.NoError(t, err)
	assert.Zero(t, n, "a replica does not take over an entry before ClaimIdle")
	assert.Empty(t, other.batches)

	own := &recorder{}
	n, err = first.Poll(ctx, own)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, own.batches[0][0].Attempt)
}

func TestStreamConsumer_DeadLettersAfterMaxDeliveries(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	consumer := newConsumer(c, "graphql", 2)
	require.NoError(t, consumer.EnsureGroup(ctx))
	pub := NewStreamPublisher(c, stream, "", time.Minute)
	require.NoError(t, pub.Publish(ctx, msg("alice", "poison")))

	failing := &recorder{fail: true}
	_, err := consumer.Poll(ctx, failing)
	require.Error(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = consumer.Poll(ctx, failing)
	require.Error(t, err)
	time.Sleep(20 * time.Millisecond)

	n, err := consumer.Poll(ctx, failing)
	require.NoError(t, err)
	assert.Zero(t, n)

	dead, err := c.XRange(ctx, DeadLetterStream(stream, "graphql"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "alice", dead[0].Values["group"])

	pending, err := c.XPending(ctx, stream, "graphql").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestCacheStore_Contact(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	cache := NewCacheStore(c, CacheConfig{ContactTTL: time.Minute})

	miss, err := cache.GetContact(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, cache.SetContact(ctx, contact.Contact{ID: "c1", Name: "buy milk", Completed: true, Owner: "alice"}))
	got, err := cache.GetContact(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "buy milk", got.Name)
	assert.True(t, got.Completed)

	mr.FastForward(2 * time.Minute)
	expired, err := cache.GetContact(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestRateLimiter_AllowCommand(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c, RateLimitConfig{CommandLimit: 2, CommandWindow: time.Minute})

	for i := 0; i < 2; i++ {
		res, err := rl.AllowCommand(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := rl.AllowCommand(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)

	other, err := rl.AllowCommand(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	require.NoError(t, rl.ResetUser(ctx, "alice"))
	status, err := rl.GetCommandStatus(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Remaining)
}

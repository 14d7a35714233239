package redis

import (
	"context"
	"fmt"
	"time"

	"awscqrs/internal/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Stream entry fields.
const (
	fieldGroup  = "group"
	fieldBody   = "body"
	fieldReason = "reason"
)

// StreamPublisher puts messages onto one Redis stream. Every subscription
// reads the stream through its own consumer group, so the stream is the
// broadcast channel and entry order is the FIFO order.
type StreamPublisher struct {
	client   *redis.Client
	stream   string
	topicArn string
	window   time.Duration
	clock    func() time.Time
}

func NewStreamPublisher(client *redis.Client, stream, topicArn string, window time.Duration) *StreamPublisher {
	return &StreamPublisher{
		client:   client,
		stream:   stream,
		topicArn: topicArn,
		window:   window,
		clock:    time.Now,
	}
}

func dedupeKey(stream, id string) string {
	return fmt.Sprintf("dedupe:%s:%s", stream, id)
}

// publishScript appends an entry unless its dedupe key is live. The key is
// written after the XADD inside one script, so a failed append never leaves
// a key behind that would swallow the retry.
var publishScript = redis.NewScript(`
	local key = KEYS[1]
	local stream = KEYS[2]
	local window = tonumber(ARGV[3])

	if redis.call('EXISTS', key) == 1 then
		return 0
	end

	local id = redis.call('XADD', stream, '*', 'group', ARGV[1], 'body', ARGV[2])
	if window > 0 then
		redis.call('SET', key, id, 'PX', ARGV[3])
	end
	return 1
`)

// Publish appends msg unless a message with the same deduplication id was
// accepted within the window.
func (p *StreamPublisher) Publish(ctx context.Context, msg events.Message) error {
	if msg.GroupID == "" || msg.DedupeID == "" {
		return fmt.Errorf("redis stream: group and deduplication ids are required")
	}
	if msg.TopicArn == "" {
		msg.TopicArn = p.topicArn
	}

	body, err := events.WrapMessage(msg, uuid.NewString(), p.clock())
	if err != nil {
		return err
	}

	keys := []string{dedupeKey(p.stream, msg.DedupeID), p.stream}
	err = publishScript.Run(ctx, p.client, keys, msg.GroupID, string(body), p.window.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

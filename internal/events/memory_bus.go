package events

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBus is an in-process broadcast channel with FIFO subscriptions and a
// deduplication window. It backs local mode and pipeline tests.
type MemoryBus struct {
	mu       sync.Mutex
	clock    func() time.Time
	window   time.Duration
	topicArn string
	seen     map[string]time.Time
	queues   map[string]*MemoryQueue
	seq      int64
}

func NewMemoryBus(topicArn string, window time.Duration) *MemoryBus {
	return &MemoryBus{
		clock:    time.Now,
		window:   window,
		topicArn: topicArn,
		seen:     make(map[string]time.Time),
		queues:   make(map[string]*MemoryQueue),
	}
}

// WithClock swaps the time source. Tests use it to move past the window.
func (b *MemoryBus) WithClock(clock func() time.Time) *MemoryBus {
	b.clock = clock
	return b
}

// Subscribe returns the named subscription queue, creating it on first use.
// Only messages published after creation are delivered to it.
func (b *MemoryBus) Subscribe(name string, batchSize, maxDeliveries int) *MemoryQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return q
	}
	q := newMemoryQueue(name, batchSize, maxDeliveries)
	b.queues[name] = q
	return q
}

func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.GroupID == "" || msg.DedupeID == "" {
		return fmt.Errorf("memory bus: group and deduplication ids are required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	for id, at := range b.seen {
		if now.Sub(at) >= b.window {
			delete(b.seen, id)
		}
	}
	if _, dup := b.seen[msg.DedupeID]; dup {
		return nil
	}
	b.seen[msg.DedupeID] = now
	b.seq++

	if msg.TopicArn == "" {
		msg.TopicArn = b.topicArn
	}
	messageID := fmt.Sprintf("%020d", b.seq)
	body, err := WrapMessage(msg, messageID, now)
	if err != nil {
		return err
	}
	for _, q := range b.queues {
		q.push(Delivery{ID: messageID, Body: body})
	}
	return nil
}

// MemoryQueue is one FIFO subscription of a MemoryBus. It expects a single
// consumer.
type MemoryQueue struct {
	mu            sync.Mutex
	name          string
	batchSize     int
	maxDeliveries int
	pending       []Delivery
	dead          []Delivery
	notify        chan struct{}
}

func newMemoryQueue(name string, batchSize, maxDeliveries int) *MemoryQueue {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &MemoryQueue{
		name:          name,
		batchSize:     batchSize,
		maxDeliveries: maxDeliveries,
		notify:        make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) push(d Delivery) {
	q.mu.Lock()
	q.pending = append(q.pending, d)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Name() string { return q.name }

func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DeadLetters returns the deliveries that exhausted their attempts.
func (q *MemoryQueue) DeadLetters() []Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Delivery(nil), q.dead...)
}

// Drain hands batches to handler until the queue is empty or a batch fails.
// A failed batch stays at the head of the queue, except deliveries that have
// reached maxDeliveries, which move to the dead letters.
func (q *MemoryQueue) Drain(ctx context.Context, handler BatchHandler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.mu.Lock()
		n := len(q.pending)
		if n == 0 {
			q.mu.Unlock()
			return nil
		}
		if n > q.batchSize {
			n = q.batchSize
		}
		batch := make([]Delivery, n)
		for i := 0; i < n; i++ {
			q.pending[i].Attempt++
			batch[i] = q.pending[i]
		}
		q.mu.Unlock()

		if err := handler.HandleBatch(ctx, batch); err != nil {
			q.mu.Lock()
			if q.maxDeliveries > 0 {
				kept := q.pending[:0:0]
				for i, d := range q.pending {
					if i < n && d.Attempt >= q.maxDeliveries {
						q.dead = append(q.dead, d)
						continue
					}
					kept = append(kept, d)
				}
				q.pending = kept
			}
			q.mu.Unlock()
			return fmt.Errorf("subscription %s: %w", q.name, err)
		}

		q.mu.Lock()
		q.pending = q.pending[n:]
		q.mu.Unlock()
	}
}

// Consume drains the queue whenever something is published, until ctx ends.
// A failing batch is retried after a short pause.
func (q *MemoryQueue) Consume(ctx context.Context, handler BatchHandler) error {
	retry := time.NewTicker(250 * time.Millisecond)
	defer retry.Stop()
	for {
		failed := q.Drain(ctx, handler) != nil
		if ctx.Err() != nil {
			return nil
		}
		if failed {
			select {
			case <-ctx.Done():
				return nil
			case <-retry.C:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-q.notify:
		}
	}
}

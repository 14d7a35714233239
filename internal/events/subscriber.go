package events

import "context"

// Delivery is one message handed to a subscriber by its transport.
type Delivery struct {
	ID      string
	Body    []byte
	Attempt int
}

// BatchHandler applies a batch of deliveries. Returning an error means none
// of the batch is acknowledged and the transport delivers it again.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch []Delivery) error
}

type BatchHandlerFunc func(ctx context.Context, batch []Delivery) error

func (f BatchHandlerFunc) HandleBatch(ctx context.Context, batch []Delivery) error {
	return f(ctx, batch)
}

// Consumer pulls batches for one subscription and feeds them to a handler
// until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler BatchHandler) error
}

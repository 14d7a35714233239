package feed

import (
	"context"
	"time"

	"awscqrs/internal/repository"
	"awscqrs/pkg/logger"
)

// CaptureCursor is the cursor name of the capture step.
const CaptureCursor = "capture"

// FeedStore is a store that is both the feed and the cursor store.
type FeedStore interface {
	repository.FeedSource
	repository.CursorStore
}

// DefaultProcessor tails store under the capture cursor.
func DefaultProcessor(store FeedStore, handler BatchHandler, log *logger.Logger, batchSize int, interval time.Duration) *Processor {
	return NewProcessor(CaptureCursor, store, store, handler, log, batchSize, interval)
}

// Start runs the processor until ctx is done. It drains whatever is already
// on the feed before the first tick.
func (p *Processor) Start(ctx context.Context) error {
	if err := p.Drain(ctx); err != nil && ctx.Err() == nil {
		p.log.Warnf("initial drain of %s failed: %v", p.name, err)
	}
	p.Run(ctx)
	return nil
}

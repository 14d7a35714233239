package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"awscqrs/internal/capture"
	"awscqrs/internal/changefeed"
	"awscqrs/internal/domain/event"
	"awscqrs/internal/repository"
	"awscqrs/pkg/logger"

	"go.uber.org/zap"
)

// BatchHandler consumes one change batch. *capture.Handler is the production
// implementation.
type BatchHandler interface {
	HandleBatch(ctx context.Context, batch changefeed.Batch) (capture.Result, error)
}

// Processor tails the event log and drives the capture step. The cursor only
// moves after a whole batch was handled, so a failed batch is read again on
// the next tick (at-least-once).
type Processor struct {
	name      string
	feed      repository.FeedSource
	cursors   repository.CursorStore
	handler   BatchHandler
	log       *logger.Logger
	batchSize int
	interval  time.Duration
}

func NewProcessor(name string, feed repository.FeedSource, cursors repository.CursorStore, handler BatchHandler, log *logger.Logger, batchSize int, interval time.Duration) *Processor {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Processor{
		name:      name,
		feed:      feed,
		cursors:   cursors,
		handler:   handler,
		log:       log,
		batchSize: batchSize,
		interval:  interval,
	}
}

func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Drain(ctx); err != nil && ctx.Err() == nil {
				p.log.ErrorCtx(ctx, "feed batch failed", zap.String("cursor", p.name), zap.Error(err))
			}
		}
	}
}

// Drain processes batches until the feed is caught up or a batch fails.
func (p *Processor) Drain(ctx context.Context) error {
	for {
		n, err := p.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		if n < p.batchSize {
			return nil
		}
	}
}

// ProcessBatch handles at most one batch and returns how many feed entries it
// read.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	after, err := p.cursors.LoadCursor(ctx, p.name)
	if err != nil {
		return 0, fmt.Errorf("load cursor %s: %w", p.name, err)
	}
	entries, err := p.feed.ReadFeed(ctx, after, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("read feed after %d: %w", after, err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	batch := changefeed.Batch{Records: make([]changefeed.Record, 0, len(entries))}
	for _, entry := range entries {
		rec, err := RecordFor(entry)
		if err != nil {
			p.log.WarnCtx(ctx, "feed entry not encodable, skipped",
				zap.Int64("seq", entry.Seq),
				zap.String("event_id", entry.Event.ID.String()),
				zap.Error(err),
			)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	if _, err := p.handler.HandleBatch(ctx, batch); err != nil {
		return 0, err
	}

	last := entries[len(entries)-1].Seq
	if err := p.cursors.SaveCursor(ctx, p.name, last); err != nil {
		return 0, fmt.Errorf("save cursor %s at %d: %w", p.name, last, err)
	}
	return len(entries), nil
}

// RecordFor renders a feed entry as the INSERT record a stream would carry.
func RecordFor(entry event.FeedEntry) (changefeed.Record, error) {
	return changefeed.InsertRecord(
		strconv.FormatInt(entry.Seq, 10),
		fmt.Sprintf("%021d", entry.Seq),
		[]string{event.AttrOwner, event.AttrTimestamp},
		entry.Event.Item(),
	)
}

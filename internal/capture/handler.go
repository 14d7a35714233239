package capture

import (
	"context"
	"fmt"

	"awscqrs/internal/changefeed"
	"awscqrs/internal/events"
	"awscqrs/pkg/logger"

	"go.uber.org/zap"
)

// RecordError describes one change record that could not be turned into a
// message. It never fails the batch.
type RecordError struct {
	Index   int
	EventID string
	Err     error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.EventID, e.Err)
}

// Result summarises one handled batch.
type Result struct {
	Published int
	Skipped   int
	Rejected  []RecordError
}

// Prepared is a normalized record ready to publish.
type Prepared struct {
	Index   int
	EventID string
	Message events.Message
}

// Handler turns change-feed batches into published messages.
type Handler struct {
	publisher events.Publisher
	keys      events.KeyResolver
	topicArn  string
	log       *logger.Logger
}

func NewHandler(publisher events.Publisher, keys events.KeyResolver, topicArn string, log *logger.Logger) *Handler {
	if keys == nil {
		keys = events.NewOwnerKeyResolver()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Handler{publisher: publisher, keys: keys, topicArn: topicArn, log: log}
}

// Normalize flattens every record that has a new image. Records without one
// are deletions and are skipped; malformed records are reported and skipped.
func (h *Handler) Normalize(batch changefeed.Batch) (prepared []Prepared, skipped int, rejected []RecordError) {
	for i, rec := range batch.Records {
		if !rec.HasNewImage() {
			skipped++
			continue
		}
		msg, err := h.prepare(rec)
		if err != nil {
			rejected = append(rejected, RecordError{Index: i, EventID: rec.EventID, Err: err})
			continue
		}
		prepared = append(prepared, Prepared{Index: i, EventID: rec.EventID, Message: msg})
	}
	return prepared, skipped, rejected
}

func (h *Handler) prepare(rec changefeed.Record) (msg events.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalize panic: %v", r)
		}
	}()
	n := events.Notification(changefeed.Flatten(rec.Change.NewImage))
	return events.NewMessage(n, h.keys, h.topicArn)
}

// HandleBatch normalizes and publishes a batch in feed order. A publish
// failure aborts the batch so that the feed delivers it again; everything
// already published is deduplicated by the transport on the retry.
func (h *Handler) HandleBatch(ctx context.Context, batch changefeed.Batch) (Result, error) {
	prepared, skipped, rejected := h.Normalize(batch)
	res := Result{Skipped: skipped, Rejected: rejected}

	for _, re := range rejected {
		h.log.WarnCtx(ctx, "change record rejected",
			zap.Int("index", re.Index),
			zap.String("record_id", re.EventID),
			zap.Error(re.Err),
		)
	}

	for _, p := range prepared {
		if err := h.publisher.Publish(ctx, p.Message); err != nil {
			return res, fmt.Errorf("publish record %d (%s): %w", p.Index, p.EventID, err)
		}
		res.Published++
	}

	h.log.InfoCtx(ctx, "change batch published",
		zap.Int("records", len(batch.Records)),
		zap.Int("published", res.Published),
		zap.Int("skipped", res.Skipped),
		zap.Int("rejected", len(res.Rejected)),
	)
	return res, nil
}

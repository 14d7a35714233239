package services

import (
	"context"
	"fmt"

	"awscqrs/internal/capture"
	"awscqrs/internal/changefeed"
	"awscqrs/internal/domain/event"
	"awscqrs/internal/repository"
	awscqrs_errors "awscqrs/pkg/errors"
	"awscqrs/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChangeHandler is the capture step the replay feeds.
type ChangeHandler interface {
	HandleBatch(ctx context.Context, batch changefeed.Batch) (capture.Result, error)
}

type ReplayRequest struct {
	Owner    string `json:"owner"`
	Typename string `json:"typename"`
	Since    string `json:"since"`
	Limit    int    `json:"limit"`
	// Force stamps a fresh RequestId on every replayed record so the
	// transport does not drop it as a duplicate inside the dedupe window.
	Force bool `json:"force"`
}

type ReplayResult struct {
	Events int            `json:"events"`
	Result capture.Result `json:"result"`
}

const maxReplayEvents = 1000

// ReplayService re-drives stored events through capture and publish.
// Projections are idempotent, so replaying is always safe.
type ReplayService struct {
	store   repository.EventStore
	handler ChangeHandler
	log     *logger.Logger
}

func NewReplayService(store repository.EventStore, handler ChangeHandler, log *logger.Logger) *ReplayService {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &ReplayService{store: store, handler: handler, log: log}
}

func (s *ReplayService) Replay(ctx context.Context, req ReplayRequest) (ReplayResult, error) {
	if req.Owner == "" && req.Typename == "" {
		return ReplayResult{}, awscqrs_errors.IncorrectRequestError("owner or typename is required")
	}
	if req.Limit <= 0 || req.Limit > maxReplayEvents {
		req.Limit = maxReplayEvents
	}

	var (
		stored []event.Event
		err    error
	)
	if req.Owner != "" {
		stored, err = s.store.ListByOwner(ctx, req.Owner, req.Since, req.Limit)
	} else {
		stored, err = s.store.ListByTypename(ctx, req.Typename, req.Limit)
	}
	if err != nil {
		return ReplayResult{}, fmt.Errorf("load events: %w", err)
	}

	batch, err := BuildReplayBatch(stored, req.Typename, req.Force)
	if err != nil {
		return ReplayResult{}, err
	}
	if len(batch.Records) == 0 {
		return ReplayResult{}, nil
	}

	res, err := s.handler.HandleBatch(ctx, batch)
	if err != nil {
		return ReplayResult{Events: len(batch.Records), Result: res}, err
	}
	s.log.InfoCtx(ctx, "events replayed",
		zap.String("owner", req.Owner),
		zap.String("typename", req.Typename),
		zap.Int("events", len(batch.Records)),
		zap.Bool("force", req.Force),
	)
	return ReplayResult{Events: len(batch.Records), Result: res}, nil
}

// BuildReplayBatch renders stored events as INSERT records in store order.
// A non-empty typename filters events listed by owner.
func BuildReplayBatch(stored []event.Event, typename string, force bool) (changefeed.Batch, error) {
	batch := changefeed.Batch{Records: make([]changefeed.Record, 0, len(stored))}
	for _, e := range stored {
		if typename != "" && e.Typename != typename {
			continue
		}
		item := e.Item()
		if force {
			item[event.AttrRequestID] = "replay-" + uuid.NewString()
		}
		rec, err := changefeed.InsertRecord(e.ID.String(), e.Timestamp,
			[]string{event.AttrOwner, event.AttrTimestamp}, item)
		if err != nil {
			return changefeed.Batch{}, fmt.Errorf("encode event %s: %w", e.ID, err)
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"awscqrs/internal/domain/event"
	"awscqrs/internal/repository"
	awscqrs_errors "awscqrs/pkg/errors"
	"awscqrs/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Clock hands out strictly increasing timestamps, so two commands accepted
// by one process never share a sort key.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}

type CommandService struct {
	store repository.EventStore
	clock *Clock
	log   *logger.Logger
}

func NewCommandService(store repository.EventStore, clock *Clock, log *logger.Logger) *CommandService {
	if clock == nil {
		clock = NewClock(nil)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &CommandService{store: store, clock: clock, log: log}
}

// Accept validates one command and appends it as an event owned by userID.
func (s *CommandService) Accept(ctx context.Context, method string, body []byte, userID string) (event.Event, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return event.Event{}, awscqrs_errors.IncorrectRequestError("http method is missing")
	}
	if !strings.EqualFold(method, http.MethodPost) {
		return event.Event{}, awscqrs_errors.NotAllowedError("method " + method + " is not allowed")
	}

	payload, err := parseCommandBody(body)
	if err != nil {
		return event.Event{}, err
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return event.Event{}, awscqrs_errors.UnauthenticatedError("user is not authenticated")
	}

	e := event.Event{
		Owner:     userID,
		Timestamp: event.FormatTimestamp(s.clock.Next()),
		ID:        uuid.New(),
		Payload:   payload,
	}
	if typename, ok := payload[event.AttrTypename].(string); ok {
		e.Typename = typename
	}

	if err := s.store.Append(ctx, e); err != nil {
		if errors.Is(err, awscqrs_errors.ErrConflict) {
			return event.Event{}, awscqrs_errors.ConflictError("an event already exists at this position")
		}
		return event.Event{}, err
	}

	s.log.InfoCtx(logger.WithEvent(ctx, e.Owner, e.ID.String()), "command accepted",
		zap.String("timestamp", e.Timestamp),
		zap.String("typename", e.Typename),
	)
	return e, nil
}

// parseCommandBody requires a JSON object and drops the reserved attributes
// the server assigns.
func parseCommandBody(body []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, awscqrs_errors.IncorrectRequestError("request body is missing")
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, awscqrs_errors.IncorrectRequestError("request body is not valid JSON")
	}
	payload, ok := decoded.(map[string]any)
	if !ok {
		return nil, awscqrs_errors.IncorrectRequestError("request body must be a JSON object")
	}
	delete(payload, event.AttrOwner)
	delete(payload, event.AttrTimestamp)
	delete(payload, event.AttrID)
	return payload, nil
}

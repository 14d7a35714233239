package projection

import (
	"context"
	"fmt"

	"awscqrs/internal/events"
	"awscqrs/pkg/logger"

	"go.uber.org/zap"
)

// ApplyFunc applies one unwrapped notification to a derived view. It must be
// idempotent: the same notification can arrive more than once.
type ApplyFunc func(ctx context.Context, n events.Notification) error

// Projector adapts an ApplyFunc to a subscription. Any failing message fails
// the whole batch so the transport redelivers it; messages before it are
// applied again on the redelivery, which idempotence makes harmless.
type Projector struct {
	name  string
	apply ApplyFunc
	log   *logger.Logger
}

func NewProjector(name string, apply ApplyFunc, log *logger.Logger) *Projector {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Projector{name: name, apply: apply, log: log}
}

func (p *Projector) Name() string { return p.name }

func (p *Projector) HandleBatch(ctx context.Context, batch []events.Delivery) error {
	for _, d := range batch {
		n, err := events.Unwrap(d.Body)
		if err != nil {
			p.log.ErrorCtx(ctx, "undecodable message",
				zap.String("projection", p.name),
				zap.String("message_id", d.ID),
				zap.Int("attempt", d.Attempt),
				zap.Error(err),
			)
			return fmt.Errorf("%s: message %s: %w", p.name, d.ID, err)
		}

		msgCtx := logger.WithEvent(ctx, n.Owner(), n.ID())
		if err := p.apply(msgCtx, n); err != nil {
			p.log.ErrorCtx(msgCtx, "projection failed",
				zap.String("projection", p.name),
				zap.String("message_id", d.ID),
				zap.Int("attempt", d.Attempt),
				zap.Error(err),
			)
			return fmt.Errorf("%s: message %s: %w", p.name, d.ID, err)
		}
	}
	p.log.InfoCtx(ctx, "batch projected", zap.String("projection", p.name), zap.Int("messages", len(batch)))
	return nil
}

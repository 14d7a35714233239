package websocket

import (
	"context"

	"awscqrs/internal/events"
	"awscqrs/internal/projection"
	"awscqrs/pkg/logger"
)

// Bridge feeds the live subscription of the broadcast channel into the hub.
type Bridge struct {
	consumer events.Consumer
	hub      *Hub
	log      *logger.Logger
}

func NewBridge(consumer events.Consumer, hub *Hub, log *logger.Logger) *Bridge {
	return &Bridge{consumer: consumer, hub: hub, log: log}
}

func (b *Bridge) Run(ctx context.Context) error {
	return b.consumer.Consume(ctx, projection.NewLiveProjector(b.hub, b.log))
}

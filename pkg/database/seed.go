package database

import (
	"context"
	"fmt"
	"time"

	"awscqrs/internal/domain/event"
	"awscqrs/internal/repository"
	"awscqrs/pkg/logger"

	"github.com/google/uuid"
)

// SeedConfig holds configuration for seeding the event log
type SeedConfig struct {
	Owners        []string
	NotesPerOwner int
	Start         time.Time
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		Owners:        []string{"alice", "bob"},
		NotesPerOwner: 3,
		Start:         time.Now().UTC(),
	}
}

// SeedResult holds the events appended by Seed
type SeedResult struct {
	Events []event.Event
}

// Seed appends sample note events through the event store, so the feed relay
// carries them to every projection like any other command.
func Seed(ctx context.Context, store repository.EventStore, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}
	log := logger.GetGlobalLogger()
	result := &SeedResult{}

	for _, owner := range cfg.Owners {
		for i := 0; i < cfg.NotesPerOwner; i++ {
			e := event.Event{
				Owner:     owner,
				Timestamp: event.FormatTimestamp(cfg.Start.Add(time.Duration(i) * time.Millisecond)),
				ID:        uuid.New(),
				Typename:  "Note",
				Payload: map[string]any{
					"name":      fmt.Sprintf("%s's note #%d", owner, i+1),
					"completed": i%2 == 1,
				},
			}
			if err := store.Append(ctx, e); err != nil {
				return nil, fmt.Errorf("failed to seed event for %s: %w", owner, err)
			}
			result.Events = append(result.Events, e)
		}
		log.Infof("seeded %d notes for %s", cfg.NotesPerOwner, owner)
	}
	return result, nil
}

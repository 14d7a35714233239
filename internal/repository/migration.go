package repository

import (
	"fmt"

	"awscqrs/internal/domain/contact"
	"awscqrs/internal/domain/event"

	"gorm.io/gorm"
)

// InitSchema creates the event log, the feed cursors and the contact
// projection table. Every statement is idempotent.
func InitSchema(db *gorm.DB) error {
	// The event log is written with explicit SQL, so its table is too.
	// (owner, "timestamp") is the primary key; seq is the feed position.
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			seq         BIGSERIAL NOT NULL UNIQUE,
			owner       TEXT NOT NULL,
			"timestamp" TEXT NOT NULL,
			id          UUID NOT NULL UNIQUE,
			typename    TEXT,
			payload     JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (owner, "timestamp")
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_typename ON events (typename, seq) WHERE typename IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_events_created_at ON events (created_at);`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create event log: %w", err)
		}
	}

	if err := db.AutoMigrate(
		&event.FeedCursor{},
		&contact.Contact{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	return nil
}

// DropSchema removes everything InitSchema creates.
func DropSchema(db *gorm.DB) error {
	for _, table := range []string{"contacts", "feed_cursors", "events"} {
		if err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)).Error; err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}

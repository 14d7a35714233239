package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"awscqrs/internal/domain/event"
	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/google/uuid"
)

const eventColumns = `seq, owner, "timestamp", id, typename, payload`

type PostgresEventRepository struct {
	db    DBTX
	clock func() time.Time
	// settle keeps the feed reader behind the newest rows so a sequence value
	// taken by a transaction that commits late is not skipped.
	settle time.Duration
}

func NewEventRepository(db DBTX) *PostgresEventRepository {
	return &PostgresEventRepository{db: db, clock: time.Now, settle: time.Second}
}

// WithSettle overrides the feed settle delay.
func (r *PostgresEventRepository) WithSettle(d time.Duration) *PostgresEventRepository {
	r.settle = d
	return r
}

// Append inserts e. Re-appending the same event is a no-op; a different event
// at an occupied (owner, timestamp) is a conflict, never an overwrite.
func (r *PostgresEventRepository) Append(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(nonNilPayload(e.Payload))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
        INSERT INTO events (owner, "timestamp", id, typename, payload, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (owner, "timestamp") DO NOTHING
    `,
		e.Owner,
		e.Timestamp,
		e.ID,
		nullString(e.Typename),
		payload,
		r.clock().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return awscqrs_errors.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var existing uuid.UUID
	err = r.db.QueryRowContext(ctx, `
        SELECT id FROM events WHERE owner = $1 AND "timestamp" = $2
    `, e.Owner, e.Timestamp).Scan(&existing)
	if err != nil {
		return err
	}
	if existing == e.ID {
		return nil
	}
	return awscqrs_errors.ErrConflict
}

func (r *PostgresEventRepository) Get(ctx context.Context, owner, timestamp string) (event.Event, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+eventColumns+`
        FROM events
        WHERE owner = $1 AND "timestamp" = $2
    `, owner, timestamp)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, awscqrs_errors.ErrNotFound
		}
		return event.Event{}, err
	}
	return entry.Event, nil
}

// ListByOwner returns an owner's events in timestamp order, strictly after
// since when it is set.
func (r *PostgresEventRepository) ListByOwner(ctx context.Context, owner, since string, limit int) ([]event.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+eventColumns+`
        FROM events
        WHERE owner = $1 AND "timestamp" > $2
        ORDER BY "timestamp" ASC
        LIMIT $3
    `, owner, since, limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (r *PostgresEventRepository) ListByTypename(ctx context.Context, typename string, limit int) ([]event.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+eventColumns+`
        FROM events
        WHERE typename = $1
        ORDER BY seq ASC
        LIMIT $2
    `, typename, limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

// ReadFeed returns appended events with a position greater than after.
func (r *PostgresEventRepository) ReadFeed(ctx context.Context, after int64, limit int) ([]event.FeedEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+eventColumns+`
        FROM events
        WHERE seq > $1 AND created_at <= $2
        ORDER BY seq ASC
        LIMIT $3
    `, after, r.clock().UTC().Add(-r.settle), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []event.FeedEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *PostgresEventRepository) LoadCursor(ctx context.Context, name string) (int64, error) {
	var position int64
	err := r.db.QueryRowContext(ctx, `
        SELECT position FROM feed_cursors WHERE name = $1
    `, name).Scan(&position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return position, nil
}

func (r *PostgresEventRepository) SaveCursor(ctx context.Context, name string, position int64) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO feed_cursors (name, position, updated_at)
        VALUES ($1,$2,$3)
        ON CONFLICT (name) DO UPDATE SET position = EXCLUDED.position, updated_at = EXCLUDED.updated_at
    `, name, position, r.clock().UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (event.FeedEntry, error) {
	var (
		entry    event.FeedEntry
		typename sql.NullString
		payload  []byte
	)
	if err := row.Scan(
		&entry.Seq,
		&entry.Event.Owner,
		&entry.Event.Timestamp,
		&entry.Event.ID,
		&typename,
		&payload,
	); err != nil {
		return event.FeedEntry{}, err
	}
	entry.Event.Typename = typename.String
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &entry.Event.Payload); err != nil {
			return event.FeedEntry{}, fmt.Errorf("decode payload of %s: %w", entry.Event.ID, err)
		}
	}
	return entry, nil
}

func collectEvents(rows *sql.Rows) ([]event.Event, error) {
	defer rows.Close()
	var out []event.Event
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry.Event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNilPayload(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/linklit/LinkLit/internal/app/model"
)

// EventArchive persists lifecycle events consumed off the stream. It writes
// through pgx directly; the table is append-only and never read on a request
// path, so it stays outside the GORM models.
type EventArchive struct {
	pool *pgxpool.Pool
}

// NewEventArchive returns an archive backed by the given pool.
func NewEventArchive(pool *pgxpool.Pool) *EventArchive {
	return &EventArchive{pool: pool}
}

// Init creates the archive table when it does not exist yet.
func (a *EventArchive) Init(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lifecycle_events (
			id          text PRIMARY KEY,
			event_type  text NOT NULL,
			slug        text,
			user_id     text,
			occurred_at timestamptz NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create lifecycle_events table: %w", err)
	}
	return nil
}

// Save stores an event; replays of the same event id are no-ops, which keeps
// the archive safe under at-least-once delivery.
func (a *EventArchive) Save(ctx context.Context, ev *model.LifecycleEvent) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO lifecycle_events (id, event_type, slug, user_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Type, ev.Slug, ev.UserID, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}
	return nil
}

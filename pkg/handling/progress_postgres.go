package handling

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresProgressTracker persists checkpoints in a `(group, partition)
// -> event_id` table, shared across every processor of the same group.
// Load reads through the same pool Store writes to; consistency is that
// of the database the pool connects to.
type PostgresProgressTracker struct {
	pool *pgxpool.Pool
}

// NewPostgresProgressTracker wraps an existing pool. Callers own the
// pool's lifecycle and schema migration; CreateTable is provided as a
// convenience for tests and small deployments.
func NewPostgresProgressTracker(pool *pgxpool.Pool) *PostgresProgressTracker {
	return &PostgresProgressTracker{pool: pool}
}

// CreateTable creates the checkpoint table if it doesn't already exist.
func (t *PostgresProgressTracker) CreateTable(ctx context.Context) error {
	_, err := t.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS handling_progress (
			"group"   TEXT NOT NULL,
			partition INT  NOT NULL,
			event_id  TEXT NOT NULL,
			PRIMARY KEY ("group", partition)
		)
	`)
	if err != nil {
		return fmt.Errorf("create handling_progress table: %w", err)
	}
	return nil
}

func (t *PostgresProgressTracker) Load(ctx context.Context, key ProgressKey) (string, bool, error) {
	var eventID string
	err := t.pool.QueryRow(ctx, `
		SELECT event_id FROM handling_progress WHERE "group" = $1 AND partition = $2
	`, key.Group, key.Partition).Scan(&eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load progress for %s/%d: %w", key.Group, key.Partition, err)
	}
	return eventID, true, nil
}

// Store only advances the checkpoint, never regresses it: concurrent
// sequence-key workers in the same partition (pkg/handling/partition.go's
// sequenceWorkers) may call Store out of event-id order, so the update is
// guarded by a numeric comparison against the row already on disk rather
// than an unconditional overwrite.
func (t *PostgresProgressTracker) Store(ctx context.Context, key ProgressKey, eventID string) error {
	_, err := t.pool.Exec(ctx, `
		INSERT INTO handling_progress ("group", partition, event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT ("group", partition) DO UPDATE
			SET event_id = EXCLUDED.event_id
			WHERE handling_progress.event_id::numeric < EXCLUDED.event_id::numeric
	`, key.Group, key.Partition, eventID)
	if err != nil {
		return fmt.Errorf("store progress for %s/%d: %w", key.Group, key.Partition, err)
	}
	return nil
}

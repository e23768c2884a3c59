package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"edugb/notifications-engine/internal/models"
)

// EventQueueRepository handles database interactions for the event queue.
type EventQueueRepository interface {
	Each(ctx context.Context, fn func(models.EventQueueEntry) error) error
	Insert(ctx context.Context, entry *models.EventQueueEntry) error
	Delete(ctx context.Context, q Querier, id string) error
	CountPending(ctx context.Context) (int64, error)
}

type eventQueueRepository struct {
	db *sql.DB
}

// NewEventQueueRepository creates a new repository instance.
func NewEventQueueRepository(db *sql.DB) EventQueueRepository {
	return &eventQueueRepository{db: db}
}

// Each streams the event backlog oldest first, invoking fn once per row
// without materializing the whole backlog. An error from fn aborts the
// iteration and is returned as-is.
func (r *eventQueueRepository) Each(ctx context.Context, fn func(models.EventQueueEntry) error) error {
	query := `
		SELECT id, resolver, payload, context_id, context_path, component, area, item_id, created_at
		FROM event_queue
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query event queue: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.EventQueueEntry
		var payloadJSON string

		err := rows.Scan(
			&entry.ID,
			&entry.ResolverName,
			&payloadJSON,
			&entry.Context.ContextID,
			&entry.Context.Path,
			&entry.Context.Component,
			&entry.Context.Area,
			&entry.Context.ItemID,
			&entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan event queue row: %w", err)
		}

		if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
			return fmt.Errorf("failed to unmarshal event payload: %w", err)
		}

		if err := fn(entry); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating event queue: %w", err)
	}

	return nil
}

// Insert persists a new event queue row.
func (r *eventQueueRepository) Insert(ctx context.Context, entry *models.EventQueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO event_queue (id, resolver, payload, context_id, context_path, component, area, item_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.ResolverName,
		string(payloadJSON),
		entry.Context.ContextID,
		entry.Context.Path,
		entry.Context.Component,
		entry.Context.Area,
		entry.Context.ItemID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event queue row: %w", err)
	}

	return nil
}

// Delete removes a consumed row. Runs against the caller's transaction so
// the delete commits or rolls back with the rest of the row's processing.
func (r *eventQueueRepository) Delete(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM event_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event queue row: %w", err)
	}
	return nil
}

// CountPending returns the current backlog size.
func (r *eventQueueRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_queue`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count event queue: %w", err)
	}
	return count, nil
}
